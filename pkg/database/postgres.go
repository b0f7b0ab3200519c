package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/advanced-filters-api/pkg/config"
)

const connectTimeout = 10 * time.Second

// DSN renders the lib/pq connection string. Values are quoted so passwords with
// spaces or quotes survive.
func DSN(cfg config.DatabaseConfig) string {
	parts := []string{
		"host=" + quote(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + quote(cfg.User),
		"password=" + quote(cfg.Password),
		"dbname=" + quote(cfg.Name),
		"sslmode=" + quote(cfg.SSLMode),
		fmt.Sprintf("connect_timeout=%d", int(connectTimeout.Seconds())),
	}
	if cfg.ApplicationName != "" {
		parts = append(parts, "application_name="+quote(cfg.ApplicationName))
	}
	return strings.Join(parts, " ")
}

func quote(v string) string {
	v = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + v + "'"
}

// NewPostgres opens the filter store and verifies the connection.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
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
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return db, nil
}
