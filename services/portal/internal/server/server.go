package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"jobportal/internal/metrics"
	"jobportal/internal/ratelimit"
	"jobportal/internal/util"
	"jobportal/pkg/domain"
	"jobportal/services/portal/internal/app"
	"jobportal/services/portal/internal/jobsearch"
	"jobportal/services/portal/internal/security"
)

const (
	maxJSONBody         = 1 << 20
	multipartOverhead   = 1 << 20
	defaultAuthPerMin   = 20
	rateLimitWindow     = time.Minute
	rateLimitPrefixBase = "jobportal:ratelimit:"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                    *app.App
	Search                 *jobsearch.Service
	Metrics                *metrics.Metrics
	Alerter                *security.AuditAlerter
	Redis                  redis.UniversalClient
	AuthRateLimitPerMinute int
	CORSAllowedOrigins     []string
	TrustedProxies         []string
}

// Server exposes the job portal HTTP API.
type Server struct {
	app           *app.App
	search        *jobsearch.Service
	metrics       *metrics.Metrics
	alerter       *security.AuditAlerter
	mux           *http.ServeMux
	trusted       *util.TrustedProxies
	corsOrigins   []string
	registerLimit ratelimit.Limiter
	loginLimit    ratelimit.Limiter
	googleLimit   ratelimit.Limiter
}

// New constructs the server with routes configured. Auth routes are rate
// limited in Redis when a client is given, in process otherwise.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	search := cfg.Search
	if search == nil {
		var err error
		if search, err = jobsearch.New(jobsearch.Config{}); err != nil {
			return nil, err
		}
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	perMinute := cfg.AuthRateLimitPerMinute
	if perMinute <= 0 {
		perMinute = defaultAuthPerMin
	}
	newLimiter := func(name string) (ratelimit.Limiter, error) {
		if cfg.Redis != nil {
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.Redis, rateLimitPrefixBase+name, perMinute, rateLimitWindow)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		limiter, err := ratelimit.NewMemoryLimiter(perMinute, rateLimitWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	s := &Server{
		app:         cfg.App,
		search:      search,
		metrics:     cfg.Metrics,
		alerter:     cfg.Alerter,
		mux:         http.NewServeMux(),
		trusted:     trusted,
		corsOrigins: cfg.CORSAllowedOrigins,
	}
	if s.registerLimit, err = newLimiter("register"); err != nil {
		return nil, err
	}
	if s.loginLimit, err = newLimiter("login"); err != nil {
		return nil, err
	}
	if s.googleLimit, err = newLimiter("google"); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	if s.metrics != nil {
		h = s.metrics.InstrumentHandler(h)
	}
	h = util.WithRequestLog("portal", h)
	h = util.WithRequestID(h)
	return util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, h))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// auth
	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/google", s.handleGoogle)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.mux.HandleFunc("GET /auth/jwks", s.handleJWKS)

	// jobs
	s.mux.Handle("GET /jobs", s.optional(s.handleListJobs))
	s.mux.Handle("GET /jobs/{id}", s.optional(s.handleGetJob))
	s.mux.HandleFunc("GET /jobs/external", s.handleExternalJobs)
	s.mux.HandleFunc("GET /jobs/external/company/{name}", s.handleExternalCompany)
	s.mux.Handle("GET /jobs/recruiter/my-jobs", s.requires(app.ActionViewRecruiterJobs, s.handleRecruiterJobs))
	s.mux.Handle("POST /jobs", s.requires(app.ActionCreateJob, s.handleCreateJob))
	s.mux.Handle("PUT /jobs/{id}", s.requires(app.ActionUpdateJob, s.handleUpdateJob))
	s.mux.Handle("DELETE /jobs/{id}", s.requires(app.ActionDeleteJob, s.handleDeleteJob))

	// applications
	s.mux.Handle("POST /applications/{jobId}", s.requires(app.ActionApply, s.handleApply))
	s.mux.Handle("GET /applications/user", s.requires(app.ActionListOwnApplications, s.handleMyApplications))
	s.mux.Handle("GET /applications/job/{jobId}", s.requires(app.ActionListApplicants, s.handleJobApplicants))
	s.mux.Handle("PUT /applications/{id}/status", s.requires(app.ActionUpdateApplicationStatus, s.handleUpdateStatus))

	// profile
	s.mux.Handle("GET /users/me", s.authenticated(s.handleMe))
	s.mux.Handle("PUT /users/profile", s.authenticated(s.handleUpdateProfile))
	s.mux.Handle("POST /users/upload-resume", s.authenticated(s.handleResumeURL))
	s.mux.Handle("POST /users/upload-resume-file", s.authenticated(s.handleResumeFile))
	s.mux.HandleFunc("GET /uploads/{key...}", s.handleUpload)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

type optionalHandler func(http.ResponseWriter, *http.Request, *domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "auth.token", security.OutcomeFail, "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}
		user, err := s.app.CallerFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, app.ErrUnauthorized) {
				s.audit(r, "auth.token", security.OutcomeFail, "reason", "invalid_token")
			}
			s.writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

// requires authenticates the caller and checks the role the action needs.
// Ownership is checked by the app once the resource is loaded.
func (s *Server) requires(action app.Action, next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !app.Permits(user.Role, action) {
			role, _ := app.RoleFor(action)
			s.audit(r, "authz.role", security.OutcomeDenied, "user_id", user.ID, "action", string(action), "role", string(user.Role))
			writeError(w, http.StatusForbidden, codeForbidden, "forbidden: requires role "+string(role))
			return
		}
		next(w, r, user)
	})
}

// optional resolves the caller when a valid token is present. An absent or
// invalid token yields a nil user and never fails the request.
func (s *Server) optional(next optionalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next(w, r, nil)
			return
		}
		user, err := s.app.CallerFromToken(r.Context(), token)
		if err != nil {
			if !errors.Is(err, app.ErrUnauthorized) {
				util.LoggerFromContext(r.Context()).Warn("optional auth lookup failed", "err", err)
			}
			next(w, r, nil)
			return
		}
		next(w, r, &user)
	})
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimit, "register", "too many registration attempts") {
		s.audit(r, "auth.register", security.OutcomeRateLimited)
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Register(r.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.audit(r, "auth.register", security.OutcomeFail, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.register", security.OutcomeSuccess, "user_id", res.User.ID)
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimit, "login", "too many login attempts") {
		s.audit(r, "auth.login", security.OutcomeRateLimited)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", security.OutcomeFail, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", security.OutcomeSuccess, "user_id", res.User.ID)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.googleLimit, "google", "too many sign-in attempts") {
		s.audit(r, "auth.google", security.OutcomeRateLimited)
		return
	}
	var req googleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.FederatedSignIn(r.Context(), req.Credential, req.Role)
	var roleErr *app.RoleRequiredError
	switch {
	case errors.As(err, &roleErr):
		s.audit(r, "auth.google", "role_required")
		writeJSON(w, http.StatusOK, needsRoleResponse{NeedsRole: true, Email: roleErr.Email, Name: roleErr.Name})
	case err != nil:
		s.audit(r, "auth.google", security.OutcomeFail, "reason", err.Error())
		s.writeAppError(w, r, err)
	default:
		s.audit(r, "auth.google", security.OutcomeSuccess, "user_id", res.User.ID)
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		s.audit(r, "auth.logout", security.OutcomeFail, "reason", "missing_token")
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		s.audit(r, "auth.logout", security.OutcomeFail, "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", security.OutcomeSuccess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

// job handlers
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request, viewer *domain.User) {
	q := r.URL.Query()
	search := q.Get("search")
	if strings.TrimSpace(search) == "" {
		search = q.Get("keyword")
	}
	jobs, err := s.app.ListJobs(r.Context(), viewer, app.JobQuery{
		Search:   search,
		Location: q.Get("location"),
		Skills:   q.Get("skills"),
		Company:  q.Get("company"),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, viewer *domain.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := s.app.GetJob(r.Context(), viewer, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRecruiterJobs(w http.ResponseWriter, r *http.Request, user domain.User) {
	jobs, err := s.app.RecruiterJobs(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := s.app.CreateJob(r.Context(), user, app.JobInput{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		Skills:      deref(req.Skills),
		Location:    deref(req.Location),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req jobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := s.app.UpdateJob(r.Context(), user, id, app.JobPatch{
		Title:       req.Title,
		Description: req.Description,
		Skills:      req.Skills,
		Location:    req.Location,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.app.DeleteJob(r.Context(), user, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "job deleted"})
}

func (s *Server) handleExternalJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := s.search.Search(r.Context(), jobsearch.Query{
		Keyword:  q.Get("keyword"),
		Location: q.Get("location"),
		Company:  q.Get("company"),
		Page:     jobsearch.ParsePage(q.Get("page")),
	})
	s.metrics.SearchServed(res.Source)
	w.Header().Set("X-Data-Source", res.Source)
	writeJSON(w, http.StatusOK, res.Jobs)
}

func (s *Server) handleExternalCompany(w http.ResponseWriter, r *http.Request) {
	company, source, err := s.search.Company(r.Context(), r.PathValue("name"))
	if source != "" {
		s.metrics.SearchServed(source)
		w.Header().Set("X-Data-Source", source)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, codeNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, company)
}

// application handlers
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request, user domain.User) {
	jobID, ok := pathID(w, r, "jobId")
	if !ok {
		return
	}
	application, err := s.app.Apply(r.Context(), user, jobID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, application)
}

func (s *Server) handleMyApplications(w http.ResponseWriter, r *http.Request, user domain.User) {
	list, err := s.app.MyApplications(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleJobApplicants(w http.ResponseWriter, r *http.Request, user domain.User) {
	jobID, ok := pathID(w, r, "jobId")
	if !ok {
		return
	}
	apps, err := s.app.JobApplicants(r.Context(), user, jobID, r.URL.Query().Get("status"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	application, err := s.app.UpdateApplicationStatus(r.Context(), user, id, req.Status)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, application)
}

// profile handlers
func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateProfile(r.Context(), user, app.ProfilePatch{Name: req.Name, Email: req.Email})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleResumeURL(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req resumeURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.SetResumeURL(r.Context(), user, req.ResumeURL)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleResumeFile(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.app.ResumeMaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("resume")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "file is required (field: resume)")
		return
	}
	defer file.Close()
	updated, err := s.app.UploadResume(r.Context(), user, app.ResumeFile{Filename: header.Filename, Body: file})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	obj, err := s.app.OpenUpload(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer obj.Body.Close()
	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(r.PathValue("key"))))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		util.LoggerFromContext(r.Context()).Warn("stream upload failed", "err", err)
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trusted)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if strings.HasPrefix(event, "auth.") {
		s.metrics.AuthEvent(strings.TrimPrefix(event, "auth."), outcome)
	}
	if outcome == security.OutcomeSuccess {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, route, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	s.metrics.RateLimited(route)
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid "+name)
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid JSON body")
		return false
	}
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
