// Package testutil opens PostgreSQL databases for tests.
//
// Each call gets a fresh schema on the server named by TEST_DATABASE_URL,
// dropped again when the test ends. Without that variable the test is
// skipped, so `go test ./...` passes on a machine without PostgreSQL.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/migrations"
)

// EnvDSN names the variable holding the test server's DSN.
const EnvDSN = "TEST_DATABASE_URL"

var (
	nonIdentChars   = regexp.MustCompile(`[^a-z0-9_]+`)
	searchPathParam = regexp.MustCompile(`search_path=\S+`)
)

// DSN returns the test server's DSN or skips t.
func DSN(t testing.TB) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv(EnvDSN))
	if dsn == "" {
		t.Skipf("%s not set; skipping PostgreSQL test", EnvDSN)
	}
	return dsn
}

// OpenSchema creates an empty schema for t and returns a DSN whose
// search_path points at it.
func OpenSchema(t testing.TB, prefix string) string {
	t.Helper()
	dsn := DSN(t)
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open admin pool: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := schemaName(prefix)
	if _, err := admin.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA "%s"`, schema)); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf(`DROP SCHEMA IF EXISTS "%s" CASCADE`, schema))
	})

	scoped, err := withSearchPath(dsn, schema)
	if err != nil {
		t.Fatalf("scope DSN to %s: %v", schema, err)
	}
	return scoped
}

// MigratedPool returns a pool on a fresh schema with every migration applied.
func MigratedPool(t testing.TB, prefix string) *pgxpool.Pool {
	t.Helper()
	dsn := OpenSchema(t, prefix)

	if _, err := migrations.Up(dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func withSearchPath(dsn, schema string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse DSN: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	if searchPathParam.MatchString(dsn) {
		return searchPathParam.ReplaceAllString(dsn, "search_path="+schema), nil
	}
	return dsn + " search_path=" + schema, nil
}

// schemaName builds a unique identifier no longer than PostgreSQL's 63 bytes.
func schemaName(prefix string) string {
	base := nonIdentChars.ReplaceAllString(strings.ToLower(prefix), "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "test"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	if limit := 63 - len("t__") - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return "t_" + base + "_" + suffix
}
