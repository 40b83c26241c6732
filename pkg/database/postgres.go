package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Oliskey-School/School-app--sub008/pkg/config"
)

const (
	applicationName = "timetable-api"
	connectTimeout  = 5 * time.Second
)

// DSN builds the lib/pq key/value connection string for cfg. Empty values
// are left out so lib/pq falls back to its PG* environment defaults.
func DSN(cfg config.DatabaseConfig) string {
	pairs := []struct{ key, value string }{
		{"host", cfg.Host},
		{"port", portString(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
		{"application_name", applicationName},
		{"connect_timeout", fmt.Sprintf("%d", int(connectTimeout.Seconds()))},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteValue(p.value))
	}
	return strings.Join(parts, " ")
}

func portString(port int) string {
	if port <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", port)
}

// quoteValue applies lib/pq quoting: values with spaces, quotes or
// backslashes are wrapped in single quotes with those escaped.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// NewPostgres opens the timetable database and pings it.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s/%s: %w", cfg.Host, cfg.Name, err)
	}
	return db, nil
}
