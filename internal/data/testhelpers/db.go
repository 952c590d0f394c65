// Package testhelpers provides shared database setup for data-layer tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/fimiwatch/tweetvault/internal/migrate"
)

// TestDBConfig describes how to reach the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns the test database configuration, with defaults
// matching the docker-compose test profile. CI environments override via
// TEST_DB_* variables.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "tweetvault"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "tweetvault"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "tweetvault"),
	}
}

// SetupTestDB opens a connection to the test database and runs migrations.
// Tests are skipped when no database is reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := DefaultTestDBConfig()
	hostPort := net.JoinHostPort(cfg.Host, cfg.Port)
	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		cfg.User, cfg.Password, hostPort, cfg.DBName)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		if cerr := db.Close(); cerr != nil {
			t.Logf("warning: close after failed ping: %v", cerr)
		}
		t.Skipf("test database not available at %s: %v", hostPort, pingErr)
	}

	if migrateErr := migrate.Run(ctx, db); migrateErr != nil {
		t.Fatalf("run migrations: %v", migrateErr)
	}

	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("warning: close test database: %v", cerr)
		}
	})
	return db
}

// TruncateTasks clears the tasks table so tests start from a known state.
func TruncateTasks(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), "TRUNCATE TABLE tasks"); err != nil {
		t.Fatalf("truncate tasks: %v", err)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
