package bandit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ConnectionPrefix prefixes the environment variables holding saved
// database connection strings.
const ConnectionPrefix = "DATABASE_"

// GetConnection returns the connection string saved under name, or "" when
// none is set.
func GetConnection(name string) string {
	return os.Getenv(ConnectionPrefix + name)
}

// GetConnection returns the connection string saved under name.
func (c *Client) GetConnection(name string) string {
	return GetConnection(name)
}

// OpenConnection opens the database saved under name and checks that it is
// reachable.
func (c *Client) OpenConnection(ctx context.Context, name string) (*sql.DB, error) {
	dsn := GetConnection(name)
	if dsn == "" {
		return nil, fmt.Errorf("%w: no connection named %q (%s%s is not set)", ErrConfig, name, ConnectionPrefix, name)
	}
	driver, source, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection %q: %w", driver, name, err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s connection %q: %w", driver, name, err)
	}
	return db, nil
}

// driverFor picks the database/sql driver for a connection string and
// returns the data source in the form that driver expects.
func driverFor(dsn string) (driver, source string, err error) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return "sqlite3", dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "sqlite3://"):
		return "sqlite3", dsn[len("sqlite3://"):], nil
	case strings.HasPrefix(lower, "file:"):
		return "sqlite3", dsn, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return "sqlite3", dsn, nil
	default:
		return "", "", fmt.Errorf("%w: unsupported connection string scheme", ErrConfig)
	}
}
