package app

import (
	"context"
	"errors"
	"strings"

	"jobportal/internal/googleid"
	"jobportal/internal/metrics"
	"jobportal/pkg/queue"
	"jobportal/pkg/storage"
	"jobportal/pkg/store"
)

const (
	defaultResumeMaxBytes = 5 << 20
	uploadURLPrefix       = "/uploads/"
)

var defaultResumeExtensions = []string{".pdf", ".doc", ".docx"}

// IdentityVerifier checks a federated sign-in credential.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (googleid.Identity, error)
}

// CleanupQueue schedules removal of replaced résumé objects.
type CleanupQueue interface {
	Enqueue(ctx context.Context, ref string) (queue.Task, error)
}

// Config holds runtime dependencies for the core application. The caller
// owns Store and closes it.
// Identity and Objects are optional: without them federated sign-in and
// résumé file uploads respond with ErrUnavailable. Without Cleanup, replaced
// files are removed inline.
type Config struct {
	Store                   store.Store
	Sessions                store.SessionStore
	Identity                IdentityVerifier
	Objects                 storage.ObjectStore
	Cleanup                 CleanupQueue
	Metrics                 *metrics.Metrics
	ResumeMaxBytes          int64
	ResumeAllowedExtensions []string
}

// App implements accounts, jobs, applications, and profiles on top of a Store.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	identity   IdentityVerifier
	objects    storage.ObjectStore
	cleanup    CleanupQueue
	metrics    *metrics.Metrics
	resumeMax  int64
	resumeExts map[string]struct{}
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	maxBytes := cfg.ResumeMaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultResumeMaxBytes
	}
	return &App{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		identity:   cfg.Identity,
		objects:    cfg.Objects,
		cleanup:    cfg.Cleanup,
		metrics:    cfg.Metrics,
		resumeMax:  maxBytes,
		resumeExts: normalizeExtensions(cfg.ResumeAllowedExtensions),
	}, nil
}

// ResumeMaxBytes is the upload cap enforced by UploadResume.
func (a *App) ResumeMaxBytes() int64 {
	return a.resumeMax
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = defaultResumeExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}
