// Package security raises alerts when one client IP produces too many failed,
// denied or rate-limited requests in a short window.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Audit outcomes recognized by the alert rules.
const (
	OutcomeSuccess     = "success"
	OutcomeFail        = "fail"
	OutcomeRateLimited = "rate_limited"
	OutcomeDenied      = "denied"
)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

type rule struct {
	outcome   string
	events    []string // empty matches any event
	threshold int64
	window    time.Duration
}

var rules = []rule{
	{outcome: OutcomeRateLimited, threshold: 20, window: time.Minute},
	// Ownership probing across jobs and applications.
	{outcome: OutcomeDenied, threshold: 30, window: 5 * time.Minute},
	{outcome: OutcomeFail, events: []string{"auth.login", "auth.register", "auth.google"}, threshold: 10, window: 5 * time.Minute},
	{outcome: OutcomeFail, events: []string{"auth.token"}, threshold: 25, window: 5 * time.Minute},
}

// AuditAlerter counts security events per client IP in fixed windows kept in
// Redis, so every instance contributes to the same counters.
type AuditAlerter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewAuditAlerter returns nil when no Redis client is configured; a nil
// alerter observes nothing.
func NewAuditAlerter(client redis.UniversalClient, prefix string) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "jobportal:security:alerts"
	}
	return &AuditAlerter{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Observe records a security event. Triggered is set once per window, on the
// observation that reaches the threshold.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	if a == nil {
		return AlertResult{}, nil
	}
	r, ok := match(strings.TrimSpace(event), strings.TrimSpace(outcome))
	if !ok {
		return AlertResult{}, nil
	}
	slot := a.now().UnixMilli() / r.window.Milliseconds()
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var incr *redis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return AlertResult{}, fmt.Errorf("count %s/%s: %w", event, outcome, err)
	}
	count := incr.Val()
	return AlertResult{
		Triggered: count == r.threshold,
		Count:     count,
		Threshold: r.threshold,
		Window:    r.window,
	}, nil
}

func match(event, outcome string) (rule, bool) {
	for _, r := range rules {
		if r.outcome != outcome {
			continue
		}
		if len(r.events) == 0 {
			return r, true
		}
		for _, e := range r.events {
			if e == event {
				return r, true
			}
		}
	}
	return rule{}, false
}

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
