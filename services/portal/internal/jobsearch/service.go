package jobsearch

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobportal/internal/util"
)

// Result sources, also sent to clients in X-Data-Source.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

const (
	defaultCacheTTL    = 15 * time.Minute
	defaultCachePrefix = "jobportal:jobsearch"
	maxPage            = 100
)

// ErrCompanyNotFound is returned when no posting names the company.
var ErrCompanyNotFound = errors.New("company not found")

//go:embed fallback_jobs.json
var fallbackJSON []byte

// Config controls the external search service.
type Config struct {
	APIKey     string
	Host       string
	BaseURL    string
	UseMock    bool
	CacheTTL   time.Duration
	Cache      redis.UniversalClient
	HTTPClient *http.Client
}

// Query filters an external search. Page starts at 1.
type Query struct {
	Keyword  string
	Location string
	Company  string
	Page     int
}

// Result is a search answer plus where it came from.
type Result struct {
	Jobs   []Job
	Source string
}

// Service proxies the provider, caches its answers and falls back to the
// embedded data set whenever the provider cannot be used.
type Service struct {
	client   *Client
	live     bool
	cache    redis.UniversalClient
	cacheTTL time.Duration
	fallback []rawJob
	now      func() time.Time
}

// New builds the service. Without an API key, or in mock mode, every search
// is answered from the embedded data set.
func New(cfg Config) (*Service, error) {
	var fallback []rawJob
	if err := json.Unmarshal(fallbackJSON, &fallback); err != nil {
		return nil, fmt.Errorf("parse fallback jobs: %w", err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	return &Service{
		client:   NewClient(cfg.BaseURL, cfg.Host, apiKey, cfg.HTTPClient),
		live:     apiKey != "" && !cfg.UseMock,
		cache:    cfg.Cache,
		cacheTTL: ttl,
		fallback: fallback,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// ParsePage reads a page query parameter; anything unusable means page 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	if page > maxPage {
		return maxPage
	}
	return page
}

// Search never fails for provider reasons: it answers from cache or the
// fallback set instead.
func (s *Service) Search(ctx context.Context, q Query) Result {
	q = cleanQuery(q)
	if !s.live {
		return Result{Jobs: s.filterFallback(q), Source: SourceFallback}
	}
	query := providerQuery(q)
	key := s.cacheKey(query, q.Page)
	if jobs, ok := s.cached(ctx, key); ok {
		return Result{Jobs: jobs, Source: SourceCache}
	}
	raw, err := s.client.Search(ctx, query, q.Page)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("job search upstream failed, serving fallback", "query", query, "err", err)
		return Result{Jobs: s.filterFallback(q), Source: SourceFallback}
	}
	jobs := s.normalizeAll(raw)
	s.store(ctx, key, jobs)
	return Result{Jobs: jobs, Source: SourceLive}
}

// Company builds a profile for name from live postings, or from the
// fallback set when the provider is unavailable.
func (s *Service) Company(ctx context.Context, name string) (Company, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, "", ErrCompanyNotFound
	}
	if s.live {
		if raw, source, ok := s.companyPostings(ctx, name); ok {
			if len(raw) == 0 {
				return Company{}, source, ErrCompanyNotFound
			}
			return s.company(name, raw), source, nil
		}
	}
	var matches []rawJob
	for _, r := range s.fallback {
		if containsFold(r.EmployerName, name) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return Company{}, SourceFallback, ErrCompanyNotFound
	}
	return s.company(name, matches), SourceFallback, nil
}

// companyPostings reports ok=false when neither cache nor provider answered.
func (s *Service) companyPostings(ctx context.Context, name string) ([]rawJob, string, bool) {
	query := "jobs at " + name
	key := s.cacheKey(query, 1)
	if raw, ok := s.cachedRaw(ctx, key); ok {
		return raw, SourceCache, true
	}
	raw, err := s.client.Search(ctx, query, 1)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("company lookup upstream failed, serving fallback", "company", name, "err", err)
		return nil, "", false
	}
	s.storeRaw(ctx, key, raw)
	return raw, SourceLive, true
}

func (s *Service) company(name string, raw []rawJob) Company {
	first := raw[0]
	c := Company{
		Name:         orDefault(first.EmployerName, name),
		Description:  orDefault(first.EmployerType, "No description available"),
		Headquarters: "Not specified",
		Jobs:         s.normalizeAll(raw),
	}
	if first.City != "" && first.Country != "" {
		c.Headquarters = first.location()
	}
	if first.EmployerLogo != "" {
		logo := first.EmployerLogo
		c.Logo = &logo
	}
	if first.EmployerSite != "" {
		site := first.EmployerSite
		c.Website = &site
	}
	return c
}

func (s *Service) filterFallback(q Query) []Job {
	now := s.now()
	out := make([]Job, 0)
	for _, r := range s.fallback {
		if q.Keyword != "" && !containsFold(r.Title, q.Keyword) && !containsFold(r.Description, q.Keyword) {
			continue
		}
		if q.Location != "" && !containsFold(r.location(), q.Location) {
			continue
		}
		if q.Company != "" && !containsFold(r.EmployerName, q.Company) {
			continue
		}
		out = append(out, normalize(r, now))
	}
	return out
}

func (s *Service) normalizeAll(raw []rawJob) []Job {
	now := s.now()
	out := make([]Job, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalize(r, now))
	}
	return out
}

func (s *Service) cacheKey(query string, page int) string {
	return defaultCachePrefix + ":" + url.QueryEscape(strings.ToLower(query)) + ":" + strconv.Itoa(page)
}

func (s *Service) cached(ctx context.Context, key string) ([]Job, bool) {
	var jobs []Job
	if !s.readCache(ctx, key+":jobs", &jobs) {
		return nil, false
	}
	return jobs, true
}

func (s *Service) store(ctx context.Context, key string, jobs []Job) {
	s.writeCache(ctx, key+":jobs", jobs)
}

func (s *Service) cachedRaw(ctx context.Context, key string) ([]rawJob, bool) {
	var raw []rawJob
	if !s.readCache(ctx, key+":raw", &raw) {
		return nil, false
	}
	return raw, true
}

func (s *Service) storeRaw(ctx context.Context, key string, raw []rawJob) {
	s.writeCache(ctx, key+":raw", raw)
}

func (s *Service) readCache(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			util.LoggerFromContext(ctx).Warn("job search cache read failed", "err", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		util.LoggerFromContext(ctx).Warn("job search cache entry unreadable", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		util.LoggerFromContext(ctx).Warn("job search cache write failed", "err", err)
	}
}

func cleanQuery(q Query) Query {
	q.Keyword = strings.TrimSpace(q.Keyword)
	q.Location = strings.TrimSpace(q.Location)
	q.Company = strings.TrimSpace(q.Company)
	if q.Page < 1 {
		q.Page = 1
	}
	return q
}

func providerQuery(q Query) string {
	query := q.Keyword
	if query == "" {
		query = "developer"
	}
	if q.Location != "" {
		query += " in " + q.Location
	}
	if q.Company != "" {
		query += " at " + q.Company
	}
	return query
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
