package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter := NewAuditAlerter(client, "test:alerts")
	if alerter == nil {
		t.Fatalf("expected alerter")
	}
	return alerter
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newAlerter(t)
	var last AlertResult
	for i := 0; i < 10; i++ {
		result, err := alerter.Observe(context.Background(), "auth.login", OutcomeFail, "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if i < 9 && result.Triggered {
			t.Fatalf("triggered early at attempt %d", i+1)
		}
		last = result
	}
	if !last.Triggered || last.Count != 10 || last.Threshold != 10 {
		t.Fatalf("expected alert threshold to trigger, got %+v", last)
	}
	after, err := alerter.Observe(context.Background(), "auth.login", OutcomeFail, "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if after.Triggered || after.Count != 11 {
		t.Fatalf("alert must fire once per window, got %+v", after)
	}
}

func TestAuditAlerterRules(t *testing.T) {
	tests := []struct {
		event, outcome string
		threshold      int64
		window         time.Duration
	}{
		{"auth.login", OutcomeRateLimited, 20, time.Minute},
		{"authz.role", OutcomeDenied, 30, 5 * time.Minute},
		{"auth.google", OutcomeFail, 10, 5 * time.Minute},
		{"auth.token", OutcomeFail, 25, 5 * time.Minute},
	}
	for _, tc := range tests {
		r, ok := match(tc.event, tc.outcome)
		if !ok || r.threshold != tc.threshold || r.window != tc.window {
			t.Fatalf("%s/%s: got %+v ok=%v", tc.event, tc.outcome, r, ok)
		}
	}
	if _, ok := match("auth.logout", OutcomeFail); ok {
		t.Fatalf("logout failures have no rule")
	}
}

func TestAuditAlerterCountsPerIP(t *testing.T) {
	alerter := newAlerter(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := alerter.Observe(ctx, "auth.register", OutcomeFail, "10.0.0.1"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	result, err := alerter.Observe(ctx, "auth.register", OutcomeFail, "10.0.0.2")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected a separate counter per ip, got %d", result.Count)
	}
}

func TestAuditAlerterWindowRollsOver(t *testing.T) {
	alerter := newAlerter(t)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return now }
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := alerter.Observe(ctx, "auth.login", OutcomeRateLimited, "1.2.3.4"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	result, err := alerter.Observe(ctx, "auth.login", OutcomeRateLimited, "1.2.3.4")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("expected fresh window, got count %d", result.Count)
	}
}

func TestAuditAlerterObserveIgnoresUnknownRule(t *testing.T) {
	alerter := newAlerter(t)
	for _, tc := range []struct{ event, outcome string }{
		{"auth.login", OutcomeSuccess},
		{"auth.custom", OutcomeFail},
	} {
		result, err := alerter.Observe(context.Background(), tc.event, tc.outcome, "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered || result.Count != 0 {
			t.Fatalf("unexpected evaluation for %s/%s: %+v", tc.event, tc.outcome, result)
		}
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var alerter *AuditAlerter
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without redis")
	}
	if result, err := alerter.Observe(context.Background(), "auth.login", OutcomeFail, "ip"); err != nil || result.Triggered {
		t.Fatalf("nil alerter must be a no-op: %+v %v", result, err)
	}
}
