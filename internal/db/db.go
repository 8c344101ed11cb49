package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// KV is a string key-value table shared by the settings resolver and the
// layout store. Safe for concurrent use; database/sql serializes access.
type KV struct {
	db     *sql.DB
	driver string
}

// Open connects to dsn, creates the key-value table if needed and returns
// the store. See Resolve for how the driver is chosen.
func Open(ctx context.Context, dsn string) (*KV, error) {
	driver, conn, err := Resolve(dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite && !strings.HasPrefix(conn, "file:") {
		if err := os.MkdirAll(filepath.Dir(conn), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	kv := &KV{db: db, driver: driver}
	if err := kv.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return kv, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func (s *KV) Close() error { return s.db.Close() }

func (s *KV) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS enroute_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`)
	return err
}

// Get returns the stored value and whether the key exists.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	q := fmt.Sprintf(`SELECT value FROM enroute_kv WHERE key = %s`, s.ph(1))
	var v string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, true, nil
}

// Set upserts key.
func (s *KV) Set(ctx context.Context, key, value string) error {
	q := fmt.Sprintf(`
INSERT INTO enroute_kv (key, value, updated_at) VALUES (%s, %s, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.ph(1), s.ph(2))
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM enroute_kv WHERE key = %s`, s.ph(1))
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	// LIKE would read the '_' in "enroute_" as a wildcard
	q := fmt.Sprintf(`SELECT key FROM enroute_kv WHERE substr(key, 1, %s) = %s ORDER BY key`, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, q, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ph returns the i-th bind placeholder for the active driver.
func (s *KV) ph(i int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}
