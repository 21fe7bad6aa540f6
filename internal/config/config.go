package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-results/internal/grading"
)

type Config struct {
	HTTPAddr string `validate:"required"`

	DBDriver string `validate:"oneof=sqlite postgres"`
	DBDSN    string

	BlobBasePath string `validate:"required"`
	SiteID       string

	AuthSecret string        `validate:"min=16"`
	TokenTTL   time.Duration `validate:"gt=0"`

	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	Protocol   grading.Protocol
	Moderation grading.Moderation
	Workers    int `validate:"gte=1"`

	// CourseCatalog is an optional YAML file of course configs.
	CourseCatalog  string
	MaxUploadBytes int64 `validate:"gt=0"`

	LogLevel  string `validate:"oneof=debug info warn warning error"`
	LogFormat string `validate:"oneof=text json"`
}

var validate = validator.New()

// FromEnv reads the environment. Unparseable values fall back to defaults; Validate reports
// combinations that cannot run.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       envOr("HTTP_ADDR", ":8080"),
		DBDriver:       envOr("DB_DRIVER", "sqlite"),
		DBDSN:          envOr("DB_DSN", ""),
		BlobBasePath:   envOr("BLOB_BASE_PATH", "./data"),
		SiteID:         envOr("SITE_ID", "local"),
		AuthSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		TokenTTL:       envDuration("AUTH_TOKEN_TTL", 8*time.Hour),
		AdminUser:      envOr("ADMIN_USER", "admin"),
		AdminPassHash:  os.Getenv("ADMIN_PASS_HASH"),
		CORSOrigins:    csvOr("CORS_ORIGINS", "http://localhost:3000"),
		Workers:        envInt("GRADING_WORKERS", runtime.GOMAXPROCS(0)),
		CourseCatalog:  os.Getenv("COURSE_CATALOG"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 10<<20)),
		LogLevel:       strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(envOr("LOG_FORMAT", "text")),
	}
	var err error
	if cfg.Protocol, err = grading.ParseProtocol(os.Getenv("GRADING_PROTOCOL")); err != nil {
		return cfg, fmt.Errorf("GRADING_PROTOCOL: %w", err)
	}
	if cfg.Moderation, err = grading.ParseModeration(os.Getenv("GRADING_MODERATION")); err != nil {
		return cfg, fmt.Errorf("GRADING_MODERATION: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c Config) Policy() grading.Policy {
	return grading.Policy{Protocol: c.Protocol, Moderation: c.Moderation}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
