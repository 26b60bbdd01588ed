// Package testutil provides database fixtures for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/aurora-intel/aurora-core/internal/migrate"
)

var (
	openOnce sync.Once
	sharedDB *bun.DB
	openErr  error
)

// OpenTestDB returns a migrated bun.DB against TEST_DATABASE_URL. Tests
// are skipped when the variable is unset so the suite stays runnable
// without a local PostgreSQL.
func OpenTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	openOnce.Do(func() {
		var sqldb *sql.DB
		sqldb, openErr = sql.Open("pgx", dsn)
		if openErr != nil {
			return
		}
		db := bun.NewDB(sqldb, pgdialect.New())
		if openErr = migrate.RunWithDB(context.Background(), sqldb); openErr != nil {
			return
		}
		sharedDB = db
	})
	if openErr != nil {
		t.Fatalf("open test database: %v", openErr)
	}
	return sharedDB
}

// ResetTables truncates the KG tables between tests.
func ResetTables(t *testing.T, db bun.IDB) {
	t.Helper()

	_, err := db.NewRaw(`TRUNCATE TABLE
		ingest_ledger, kg_snapshots, kg_edges, kg_nodes, provenance_records
		RESTART IDENTITY CASCADE`).Exec(context.Background())
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
