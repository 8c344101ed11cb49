package db

import (
	"fmt"
	"net/url"
	"strings"
)

// Driver names registered by the imported database/sql drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Resolve picks the database/sql driver for dsn and returns the connection
// string that driver expects. postgres:// and postgresql:// URLs go to pgx;
// everything else is treated as a SQLite path or file: URI.
func Resolve(dsn string) (driver, conn string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("empty DSN")
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", err
		}
		switch u.Scheme {
		case "postgres", "postgresql":
			return DriverPostgres, dsn, nil
		default:
			return "", "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
		}
	}
	if dsn == ":memory:" {
		// shared cache so every pooled connection sees the same database
		return DriverSQLite, "file::memory:?cache=shared", nil
	}
	return DriverSQLite, dsn, nil
}
