package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with PORTAL_CONFIG.
var ConfigPath = envOr("PORTAL_CONFIG", "config.yaml")

// Storage backends for uploaded résumés.
const (
	StorageFS    = "fs"
	StorageMinio = "minio"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	DatabaseURL             string   `yaml:"databaseURL"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	SessionTTL              string   `yaml:"sessionTTL"`
	JWTSecret               string   `yaml:"jwtSecret"`
	JWTPrivateKeyPath       string   `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath        string   `yaml:"jwtPublicKeyPath"`
	JWTKeyID                string   `yaml:"jwtKeyId"`
	JWTIssuer               string   `yaml:"jwtIssuer"`
	JWTAudience             string   `yaml:"jwtAudience"`
	JWTLeeway               string   `yaml:"jwtLeeway"`
	GoogleClientID          string   `yaml:"googleClientId"`
	GoogleJWKSURL           string   `yaml:"googleJwksURL"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
	TrustedProxies          []string `yaml:"trustedProxies"`
	StorageBackend          string   `yaml:"storageBackend"`
	UploadDir               string   `yaml:"uploadDir"`
	MinioEndpoint           string   `yaml:"minioEndpoint"`
	MinioAccessKey          string   `yaml:"minioAccessKey"`
	MinioSecretKey          string   `yaml:"minioSecretKey"`
	MinioBucket             string   `yaml:"minioBucket"`
	MinioUseSSL             bool     `yaml:"minioUseSSL"`
	ResumeMaxBytes          int64    `yaml:"resumeMaxBytes"`
	ResumeAllowedExtensions []string `yaml:"resumeAllowedExtensions"`
	JobSearchAPIKey         string   `yaml:"jobSearchAPIKey"`
	JobSearchHost           string   `yaml:"jobSearchHost"`
	JobSearchUseMock        bool     `yaml:"jobSearchUseMock"`
	JobSearchCacheTTL       string   `yaml:"jobSearchCacheTTL"`
	AuthRateLimitPerMinute  int      `yaml:"authRateLimitPerMinute"`
}

// Load reads config from path (defaults to ConfigPath), applies environment
// overrides and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageFS
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"PORT", &cfg.Port},
		{"LOG_LEVEL", &cfg.LogLevel},
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"REDIS_ADDR", &cfg.RedisAddr},
		{"REDIS_PASSWORD", &cfg.RedisPassword},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"JWT_SECRET", &cfg.JWTSecret},
		{"JWT_PRIVATE_KEY_PATH", &cfg.JWTPrivateKeyPath},
		{"JWT_PUBLIC_KEY_PATH", &cfg.JWTPublicKeyPath},
		{"JWT_KEY_ID", &cfg.JWTKeyID},
		{"JWT_ISSUER", &cfg.JWTIssuer},
		{"JWT_AUDIENCE", &cfg.JWTAudience},
		{"JWT_LEEWAY", &cfg.JWTLeeway},
		{"GOOGLE_CLIENT_ID", &cfg.GoogleClientID},
		{"GOOGLE_JWKS_URL", &cfg.GoogleJWKSURL},
		{"STORAGE_BACKEND", &cfg.StorageBackend},
		{"UPLOAD_DIR", &cfg.UploadDir},
		{"MINIO_ENDPOINT", &cfg.MinioEndpoint},
		{"MINIO_ACCESS_KEY", &cfg.MinioAccessKey},
		{"MINIO_SECRET_KEY", &cfg.MinioSecretKey},
		{"MINIO_BUCKET", &cfg.MinioBucket},
		{"RAPIDAPI_KEY", &cfg.JobSearchAPIKey},
		{"RAPIDAPI_HOST", &cfg.JobSearchHost},
		{"JOB_SEARCH_CACHE_TTL", &cfg.JobSearchCacheTTL},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = SplitList(v)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = SplitList(v)
	}
	if v := os.Getenv("RESUME_ALLOWED_EXTENSIONS"); v != "" {
		cfg.ResumeAllowedExtensions = SplitList(v)
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid MINIO_USE_SSL %q", v)
		}
		cfg.MinioUseSSL = b
	}
	if v := os.Getenv("USE_MOCK_DATA"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid USE_MOCK_DATA %q", v)
		}
		cfg.JobSearchUseMock = b
	}
	if v := os.Getenv("RESUME_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid RESUME_MAX_BYTES %q", v)
		}
		cfg.ResumeMaxBytes = n
	}
	if v := os.Getenv("AUTH_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid AUTH_RATE_LIMIT_PER_MINUTE %q", v)
		}
		cfg.AuthRateLimitPerMinute = n
	}
	return nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	hasSecret := strings.TrimSpace(cfg.JWTSecret) != ""
	hasKey := strings.TrimSpace(cfg.JWTPrivateKeyPath) != ""
	switch {
	case hasSecret && hasKey:
		return errors.New("config: set either jwtSecret or jwtPrivateKeyPath, not both")
	case !hasSecret && !hasKey:
		return errors.New("config: jwtSecret or jwtPrivateKeyPath is required")
	case hasSecret && len(cfg.JWTSecret) < 32:
		return errors.New("config: jwtSecret must be at least 32 bytes")
	}
	if !hasKey && cfg.JWTPublicKeyPath != "" {
		return errors.New("config: jwtPublicKeyPath requires jwtPrivateKeyPath")
	}
	switch cfg.StorageBackend {
	case StorageFS:
		if strings.TrimSpace(cfg.UploadDir) == "" {
			return errors.New("config: uploadDir is required for the fs storage backend")
		}
	case StorageMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for the minio storage backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want fs or minio)", cfg.StorageBackend)
	}
	if cfg.ResumeMaxBytes < 0 || cfg.AuthRateLimitPerMinute < 0 {
		return errors.New("config: limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"sessionTTL":        cfg.SessionTTL,
		"jwtLeeway":         cfg.JWTLeeway,
		"jobSearchCacheTTL": cfg.JobSearchCacheTTL,
	} {
		if _, err := parseOptionalDuration(name, raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseSessionTTL parses optional session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	return parseOptionalDuration("sessionTTL", ttlStr)
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	return parseOptionalDuration("jwtLeeway", leewayStr)
}

// ParseJobSearchCacheTTL parses optional job search cache TTL duration string.
func ParseJobSearchCacheTTL(ttlStr string) (time.Duration, error) {
	return parseOptionalDuration("jobSearchCacheTTL", ttlStr)
}

// SplitList parses a comma-separated list, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseOptionalDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
