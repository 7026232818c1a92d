package database

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gigtasks/config"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured database with pooling and retry.
func Connect(cfg config.DB, development bool) (*gorm.DB, error) {
	dialector, safeDSN, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Str("dsn", safeDSN).Msg("connecting to database")

	// GORM logger: verbose in development
	gormLogger := logger.Default.LogMode(logger.Silent)
	if development {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	// Retry connection with exponential backoff
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	var db *gorm.DB
	backoff := time.Second
	for attempt := 0; attempt < retries; attempt++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormLogger, TranslateError: true, NowFunc: nowUTC})
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("database connect failed")
		time.Sleep(backoff)
		backoff *= 2
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// one writer at a time, avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := pingWithTimeout(db, 5*time.Second); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite file, used for local runs and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        nowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func dialectorFor(cfg config.DB) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			sslmode := "disable"
			if cfg.TLS == "true" {
				sslmode = "require"
			}
			if cfg.TLSVerify {
				sslmode = "verify-full"
			}
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name, sslmode)
			if cfg.TLSCAPath != "" {
				dsn += " sslrootcert=" + cfg.TLSCAPath
			}
			if cfg.Params != "" {
				dsn += " " + cfg.Params
			}
		}
		return postgres.Open(dsn), maskPassword(dsn, cfg.Pass), nil
	case "mysql":
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, "", err
		}
		return gormmysql.Open(dsn), maskPassword(dsn, cfg.Pass), nil
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = cfg.Name + ".db"
		}
		return sqlite.Open(sqliteDSN(path)), path, nil
	}
	return nil, "", fmt.Errorf("unsupported driver %q", cfg.Driver)
}

func mysqlDSN(cfg config.DB) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	params := cfg.Params
	if params == "" {
		params = "charset=utf8mb4&parseTime=True&loc=UTC"
	}
	if !strings.Contains(params, "tls=") && (cfg.TLS == "true" || cfg.TLS == "preferred") {
		if cfg.TLSVerify {
			// registered below and referenced by name
			params += "&tls=custom"
		} else {
			params += "&tls=true"
		}
	}
	for _, p := range []string{"timeout=", "readTimeout=", "writeTimeout="} {
		if !strings.Contains(params, p) {
			params += "&" + p + "10s"
		}
	}

	if strings.Contains(params, "tls=custom") {
		tlsCfg := &tls.Config{}
		if cfg.TLSCAPath != "" {
			caCert, err := os.ReadFile(cfg.TLSCAPath)
			if err != nil {
				return "", fmt.Errorf("failed reading DB TLS CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return "", errors.New("failed to append CA certs")
			}
			tlsCfg.RootCAs = pool
		}
		if err := mysqldriver.RegisterTLSConfig("custom", tlsCfg); err != nil {
			return "", fmt.Errorf("register tls config: %w", err)
		}
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name, params), nil
}

// nowUTC keeps every stored timestamp in UTC so day boundaries compare the
// same way on all drivers.
func nowUTC() time.Time { return time.Now().UTC() }

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func maskPassword(dsn, pass string) string {
	if pass == "" {
		return dsn
	}
	return strings.Replace(dsn, pass, "******", 1)
}

func pingWithTimeout(db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ch := make(chan error, 1)
	go func() {
		ch <- sqlDB.Ping()
	}()
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("ping timeout after %s", timeout)
	}
}
