package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort               = "8080"
	defaultMaxSubmitted       = 1
	defaultTZOffsetHours      = 3
	defaultArchiveCron        = "5 0 * * *"
	defaultCleanupCron        = "0 5 * * *"
	defaultRetentionHours     = 24
	defaultConnectRetries     = 5
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 25
	defaultConnMaxLifetimeSec = 3600
)

// DB describes how to reach the relational store.
type DB struct {
	Driver          string // postgres, mysql or sqlite
	DSN             string
	Host            string
	Port            string
	User            string
	Pass            string
	Name            string
	Params          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectRetries  int
	TLS             string
	TLSVerify       bool
	TLSCAPath       string
}

type Redis struct {
	Addr string
	Pass string
	DB   int
}

// Storage is the S3-compatible bucket used for report photos uploaded over HTTP.
type Storage struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
}

func (s Storage) Enabled() bool {
	return s.AccountID != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

type Config struct {
	Env      string
	Port     string
	LogLevel string

	DB      DB
	Redis   Redis
	Storage Storage

	JWTSecret string
	JWTIssuer string
	JWTAud    string
	CronKey   string

	BotToken      string
	WebhookSecret string
	AdminIDs      []int64

	MaxSubmittedPerWorker int
	Location              *time.Location
	ArchiveCron           string
	CleanupCron           string
	UnsubmittedRetention  time.Duration
	RejectArchiveDelay    time.Duration

	CORSAllowedOrigins []string
	TrustedProxies     []string
	MaxBodyBytes       int64
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsAdmin reports whether the Telegram id belongs to a configured admin.
func (c Config) IsAdmin(tgID int64) bool {
	for _, id := range c.AdminIDs {
		if id == tgID {
			return true
		}
	}
	return false
}

// Load reads .env (without overriding variables already set) and then the
// process environment.
func Load() (Config, error) {
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function and validates it.
func FromEnv(getenv func(string) string) (Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Env:      strings.ToLower(env("ENV", "development")),
		Port:     env("PORT", defaultPort),
		LogLevel: strings.ToLower(env("LOG_LEVEL", "info")),
		DB: DB{
			Driver: strings.ToLower(env("DB_DRIVER", "postgres")),
			DSN:    getenv("DB_DSN"),
			Host:   env("DB_HOST", "127.0.0.1"),
			User:   env("DB_USER", ""),
			Pass:   getenv("DB_PASS"),
			Name:   env("DB_NAME", "gigtasks"),
			Params: env("DB_PARAMS", ""),
			TLS:    strings.ToLower(env("DB_TLS", "false")),

			TLSVerify: env("DB_TLS_VERIFY", "false") == "true",
			TLSCAPath: env("DB_TLS_CA_PATH", ""),
		},
		Redis: Redis{
			Addr: strings.ReplaceAll(env("REDIS_ADDR", ""), " ", ""),
			Pass: getenv("REDIS_PASS"),
		},
		Storage: Storage{
			AccountID: env("R2_ACCOUNT_ID", ""),
			AccessKey: env("R2_ACCESS_KEY_ID", ""),
			SecretKey: env("R2_SECRET_ACCESS_KEY", ""),
			Bucket:    env("R2_BUCKET_NAME", ""),
		},
		JWTSecret:   getenv("JWT_SECRET"),
		JWTIssuer:   env("JWT_ISS", "gigtasks"),
		JWTAud:      env("JWT_AUD", "gigtasks"),
		CronKey:     getenv("CRON_KEY"),
		BotToken:    getenv("BOT_TOKEN"),

		WebhookSecret: getenv("TELEGRAM_WEBHOOK_SECRET"),
		ArchiveCron: env("ARCHIVE_CRON", defaultArchiveCron),
		CleanupCron: env("CLEANUP_CRON", defaultCleanupCron),
	}

	var err error
	if cfg.DB.Port, err = dbPort(cfg.DB.Driver, getenv("DB_PORT")); err != nil {
		return cfg, err
	}
	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", defaultMaxOpenConns, &cfg.DB.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", defaultMaxIdleConns, &cfg.DB.MaxIdleConns},
		{"DB_CONNECT_RETRIES", defaultConnectRetries, &cfg.DB.ConnectRetries},
		{"REDIS_DB", 0, &cfg.Redis.DB},
		{"MAX_SUBMITTED_PER_WORKER", defaultMaxSubmitted, &cfg.MaxSubmittedPerWorker},
	}
	for _, i := range ints {
		if *i.dst, err = atoi(env(i.key, ""), i.def); err != nil {
			return cfg, fmt.Errorf("%s: %w", i.key, err)
		}
	}

	lifetime, err := atoi(env("DB_CONN_MAX_LIFETIME", ""), defaultConnMaxLifetimeSec)
	if err != nil {
		return cfg, fmt.Errorf("DB_CONN_MAX_LIFETIME: %w", err)
	}
	cfg.DB.ConnMaxLifetime = time.Duration(lifetime) * time.Second

	retention, err := atoi(env("UNSUBMITTED_RETENTION_HOURS", ""), defaultRetentionHours)
	if err != nil {
		return cfg, fmt.Errorf("UNSUBMITTED_RETENTION_HOURS: %w", err)
	}
	cfg.UnsubmittedRetention = time.Duration(retention) * time.Hour

	delay, err := atoi(env("REJECT_ARCHIVE_DELAY_MINUTES", ""), 0)
	if err != nil {
		return cfg, fmt.Errorf("REJECT_ARCHIVE_DELAY_MINUTES: %w", err)
	}
	cfg.RejectArchiveDelay = time.Duration(delay) * time.Minute

	maxBody, err := atoi(env("MAX_BODY_BYTES", ""), 10<<20)
	if err != nil {
		return cfg, fmt.Errorf("MAX_BODY_BYTES: %w", err)
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.Location, err = location(env("TZ_NAME", ""), env("TZ_OFFSET_HOURS", "")); err != nil {
		return cfg, err
	}
	if cfg.AdminIDs, err = parseIDs(getenv("ADMIN_IDS")); err != nil {
		return cfg, fmt.Errorf("ADMIN_IDS: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(getenv("CORS_ALLOWED_ORIGINS"))
	cfg.TrustedProxies = splitList(getenv("TRUSTED_PROXIES"))

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late at runtime.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.DB.Driver != "sqlite" && c.DB.DSN == "" && c.DB.User == "" {
		return errors.New("DB_USER or DB_DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxSubmittedPerWorker < 1 {
		return fmt.Errorf("invalid MAX_SUBMITTED_PER_WORKER: %d (must be >= 1)", c.MaxSubmittedPerWorker)
	}
	if c.UnsubmittedRetention <= 0 {
		return errors.New("UNSUBMITTED_RETENTION_HOURS must be positive")
	}
	return nil
}

func dbPort(driver, port string) (string, error) {
	if port = strings.TrimSpace(port); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return "", fmt.Errorf("DB_PORT: %w", err)
		}
		return port, nil
	}
	if driver == "mysql" {
		return "3306", nil
	}
	return "5432", nil
}

// location resolves the zone used for day boundaries. A named zone wins over
// a fixed offset; the default is a fixed UTC+3.
func location(name, offset string) (*time.Location, error) {
	if name != "" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("TZ_NAME: %w", err)
		}
		return loc, nil
	}
	hours, err := atoi(offset, defaultTZOffsetHours)
	if err != nil {
		return nil, fmt.Errorf("TZ_OFFSET_HOURS: %w", err)
	}
	if offset != "" && hours == 0 {
		return time.UTC, nil
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", hours), hours*3600), nil
}

func atoi(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, err
	}
	return v, nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
