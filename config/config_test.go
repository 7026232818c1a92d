package config

import (
	"testing"
	"time"
)

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"DB_USER":    "app",
		"JWT_SECRET": "s3cret",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.DB.Driver != "postgres" || cfg.DB.Port != "5432" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxSubmittedPerWorker != 1 {
		t.Fatalf("MaxSubmittedPerWorker = %d, want 1", cfg.MaxSubmittedPerWorker)
	}
	if cfg.UnsubmittedRetention != 24*time.Hour {
		t.Fatalf("UnsubmittedRetention = %s, want 24h", cfg.UnsubmittedRetention)
	}
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, cfg.Location).Zone()
	if offset != 3*3600 {
		t.Fatalf("default offset = %d, want %d", offset, 3*3600)
	}
	if cfg.ArchiveCron != "5 0 * * *" {
		t.Fatalf("ArchiveCron = %q", cfg.ArchiveCron)
	}
}

func TestFromEnvParsesValues(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"DB_DRIVER":                "mysql",
		"DB_USER":                  "app",
		"JWT_SECRET":               "s3cret",
		"ADMIN_IDS":                "100, 200,,300",
		"MAX_SUBMITTED_PER_WORKER": "3",
		"TZ_OFFSET_HOURS":          "5",
		"CORS_ALLOWED_ORIGINS":     "https://a.example, https://b.example",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DB.Port != "3306" {
		t.Fatalf("mysql default port = %s", cfg.DB.Port)
	}
	if len(cfg.AdminIDs) != 3 || !cfg.IsAdmin(200) || cfg.IsAdmin(400) {
		t.Fatalf("AdminIDs = %v", cfg.AdminIDs)
	}
	if cfg.MaxSubmittedPerWorker != 3 {
		t.Fatalf("MaxSubmittedPerWorker = %d", cfg.MaxSubmittedPerWorker)
	}
	_, offset := time.Now().In(cfg.Location).Zone()
	if offset != 5*3600 {
		t.Fatalf("offset = %d", offset)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.CORSAllowedOrigins)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing jwt secret": {"DB_USER": "app"},
		"bad driver":         {"DB_DRIVER": "oracle", "DB_USER": "app", "JWT_SECRET": "x"},
		"zero submitted cap": {"DB_USER": "app", "JWT_SECRET": "x", "MAX_SUBMITTED_PER_WORKER": "0"},
		"bad admin ids":      {"DB_USER": "app", "JWT_SECRET": "x", "ADMIN_IDS": "12,abc"},
		"bad tz":             {"DB_USER": "app", "JWT_SECRET": "x", "TZ_NAME": "Nowhere/Nope"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromEnv(lookup(env)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSQLiteNeedsNoCredentials(t *testing.T) {
	if _, err := FromEnv(lookup(map[string]string{"DB_DRIVER": "sqlite", "JWT_SECRET": "x"})); err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
}
