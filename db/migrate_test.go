package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openMigrationDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping migration test")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	cleanDatabase(t, context.Background(), database)
	return database
}

func tableExists(t *testing.T, database *sql.DB, table string) bool {
	t.Helper()
	var exists bool
	err := database.QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables WHERE table_name = $1
	)`, table).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", table, err)
	}
	return exists
}

func TestRunMigrations(t *testing.T) {
	database := openMigrationDB(t)

	if err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	for _, table := range []string{"permission_kv", "oauth_tokens"} {
		if !tableExists(t, database, table) {
			t.Errorf("table %s does not exist after migration", table)
		}
	}

	version, dirty, err := GetMigrationVersion(database)
	if err != nil {
		t.Fatalf("GetMigrationVersion() error = %v", err)
	}
	if dirty {
		t.Error("migration version is dirty")
	}
	if version != 2 {
		t.Errorf("migration version = %d, want 2", version)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	database := openMigrationDB(t)

	if err := RunMigrations(database); err != nil {
		t.Fatalf("first RunMigrations() error = %v", err)
	}
	v1, _, err := GetMigrationVersion(database)
	if err != nil {
		t.Fatal(err)
	}
	if err := RunMigrations(database); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
	v2, _, err := GetMigrationVersion(database)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Errorf("version changed: %d -> %d", v1, v2)
	}
}

func TestMigrationUpDown(t *testing.T) {
	database := openMigrationDB(t)
	ctx := context.Background()

	if err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	store := NewKVStore(database)
	if err := store.Set(ctx, "group", "alice", "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Rolling back oauth_tokens must keep permission data.
	if err := MigrateDown(database); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, database, "oauth_tokens") {
		t.Error("oauth_tokens should be dropped after rolling back the last migration")
	}
	if v, ok, err := store.Get(ctx, "group", "alice"); err != nil || !ok || v != "2" {
		t.Errorf("permission row lost after rollback: %q %v %v", v, ok, err)
	}

	if err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() after rollback error = %v", err)
	}
	if v, _, _ := GetMigrationVersion(database); v != 2 {
		t.Errorf("version after re-apply = %d, want 2", v)
	}
}

func TestMigrationDownAll(t *testing.T) {
	database := openMigrationDB(t)

	if err := RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := MigrateDown(database); err != nil {
			t.Fatalf("MigrateDown() step %d error = %v", i, err)
		}
	}
	if tableExists(t, database, "permission_kv") {
		t.Error("permission_kv should not exist after rolling back every migration")
	}
	if v, _, err := GetMigrationVersion(database); err != nil || v != 0 {
		t.Errorf("version = %d err = %v, want 0", v, err)
	}
}

func cleanDatabase(t *testing.T, ctx context.Context, database *sql.DB) {
	t.Helper()
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS permission_kv CASCADE`,
		`DROP TABLE IF EXISTS oauth_tokens CASCADE`,
		`DROP TABLE IF EXISTS schema_migrations CASCADE`,
	} {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("clean database: %v", err)
		}
	}
}
