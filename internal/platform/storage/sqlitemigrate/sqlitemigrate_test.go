package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

const (
	scenesUp = `-- +migrate Up
CREATE TABLE scenes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    is_current INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE scene_flags (
    scene_id TEXT NOT NULL REFERENCES scenes (id) ON DELETE CASCADE,
    namespace TEXT NOT NULL,
    flag_key TEXT NOT NULL,
    value_json TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (scene_id, namespace, flag_key)
);
-- +migrate Down
DROP TABLE scene_flags;
DROP TABLE scenes;
`
	actorsUp = `-- +migrate Up
CREATE TABLE actors (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    img TEXT NOT NULL DEFAULT '',
    owner_user_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
-- +migrate Down
DROP TABLE actors;
`
)

func hostMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_scenes.sql": &fstest.MapFile{Data: []byte(scenesUp)},
		"002_actors.sql": &fstest.MapFile{Data: []byte(actorsUp)},
	}
}

func TestApplyMigrationsRecordsApplied(t *testing.T) {
	db := openInMemoryDB(t)

	if err := ApplyMigrations(db, hostMigrations(), ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if got := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 2 {
		t.Fatalf("migration rows = %d, want 2", got)
	}
	for _, table := range []string{"scenes", "scene_flags", "actors"} {
		if !tableExists(t, db, table) {
			t.Fatalf("table %q missing after migrate", table)
		}
	}

	if _, err := db.Exec(`INSERT INTO scenes (id, name, is_current, created_at, updated_at) VALUES ('scene-1', 'Docks', 1, 0, 0)`); err != nil {
		t.Fatalf("insert scene: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO scene_flags (scene_id, namespace, flag_key, value_json, updated_at) VALUES ('scene-1', 'storyframe', 'state', '{}', 0)`); err != nil {
		t.Fatalf("insert scene flag: %v", err)
	}
	if got := queryString(t, db, "SELECT value_json FROM scene_flags WHERE scene_id = 'scene-1'"); got != "{}" {
		t.Fatalf("value_json = %q, want %q", got, "{}")
	}
}

func TestApplyMigrationsRunsFilesInNameOrder(t *testing.T) {
	db := openInMemoryDB(t)

	if err := ApplyMigrations(db, hostMigrations(), ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if got := queryString(t, db, "SELECT name FROM schema_migrations ORDER BY applied_at, rowid LIMIT 1"); got != "001_scenes.sql" {
		t.Fatalf("first migration = %q, want %q", got, "001_scenes.sql")
	}
}

func TestApplyMigrationsSkipsAlreadyApplied(t *testing.T) {
	db := openInMemoryDB(t)

	first := fstest.MapFS{
		"001_scenes.sql": &fstest.MapFile{Data: []byte(scenesUp)},
	}
	if err := ApplyMigrations(db, first, ""); err != nil {
		t.Fatalf("apply initial migrations: %v", err)
	}

	// A rerun with the next file only applies the new one; 001 would fail
	// on its primary key insert if it ran twice.
	if _, err := db.Exec(`INSERT INTO scenes (id, created_at, updated_at) VALUES ('scene-1', 0, 0)`); err != nil {
		t.Fatalf("insert scene: %v", err)
	}
	if err := ApplyMigrations(db, hostMigrations(), ""); err != nil {
		t.Fatalf("re-apply migrations should be idempotent: %v", err)
	}

	if got := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 2 {
		t.Fatalf("migration rows after replay = %d, want 2", got)
	}
	if got := queryInt64(t, db, "SELECT COUNT(*) FROM scenes"); got != 1 {
		t.Fatalf("scenes after replay = %d, want 1", got)
	}
}

func TestApplyMigrationsDoesNotRecordFailedMigration(t *testing.T) {
	db := openInMemoryDB(t)

	bad := fstest.MapFS{
		"002_actors.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREAT TABLE actors (id TEXT PRIMARY KEY);"),
		},
	}
	if err := ApplyMigrations(db, bad, ""); err == nil {
		t.Fatal("expected bad migration to fail")
	}

	if got := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 0 {
		t.Fatalf("failed migration recorded: %d rows", got)
	}

	good := fstest.MapFS{
		"002_actors.sql": &fstest.MapFile{Data: []byte(actorsUp)},
	}
	if err := ApplyMigrations(db, good, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}

	if got := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 1 {
		t.Fatalf("fixed migration rows = %d, want 1", got)
	}
	if !tableExists(t, db, "actors") {
		t.Fatal("actors table missing after fixed migration")
	}
}

func TestApplyMigrationsToleratesExistingColumn(t *testing.T) {
	db := openInMemoryDB(t)

	if err := ApplyMigrations(db, hostMigrations(), ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.Exec("ALTER TABLE actors ADD COLUMN token_img TEXT NOT NULL DEFAULT ''"); err != nil {
		t.Fatalf("add column by hand: %v", err)
	}

	addColumn := fstest.MapFS{
		"003_actor_token.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nALTER TABLE actors ADD COLUMN token_img TEXT NOT NULL DEFAULT '';"),
		},
	}
	if err := ApplyMigrations(db, addColumn, ""); err != nil {
		t.Fatalf("duplicate column should be tolerated: %v", err)
	}
	if got := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations WHERE name = '003_actor_token.sql'"); got != 1 {
		t.Fatalf("tolerated migration rows = %d, want 1", got)
	}
}

func TestApplyMigrationsRespectsMigrationRoot(t *testing.T) {
	db := openInMemoryDB(t)

	migrations := fstest.MapFS{
		"host/001_scenes.sql":   &fstest.MapFile{Data: []byte(scenesUp)},
		"other/001_ignored.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE ignored (id TEXT);")},
	}

	if err := ApplyMigrationsContext(context.Background(), db, migrations, "host"); err != nil {
		t.Fatalf("apply migrations with root: %v", err)
	}

	key := queryString(t, db, "SELECT name FROM schema_migrations LIMIT 1")
	if key != "host/001_scenes.sql" {
		t.Fatalf("migration key = %q, want %q", key, "host/001_scenes.sql")
	}
	if !tableExists(t, db, "scene_flags") {
		t.Fatal("scene_flags missing after root-based migration")
	}
	if tableExists(t, db, "ignored") {
		t.Fatal("migration outside root was applied")
	}
}

func TestApplyMigrationsRejectsNilInputs(t *testing.T) {
	if err := ApplyMigrations(nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected nil db to be rejected")
	}
	if err := ApplyMigrations(openInMemoryDB(t), nil, ""); err == nil {
		t.Fatal("expected nil fs to be rejected")
	}
}

func TestExtractUpMigration(t *testing.T) {
	cases := map[string]string{
		"DROP INDEX idx_actors_owner;":                                                       "DROP INDEX idx_actors_owner;",
		"-- +migrate Up\nDROP INDEX idx_actors_owner;":                                       "\nDROP INDEX idx_actors_owner;",
		"-- +migrate Up\nDROP INDEX idx_actors_owner;\n-- +migrate Down\nDROP TABLE actors;": "\nDROP INDEX idx_actors_owner;\n",
	}
	for in, want := range cases {
		if got := ExtractUpMigration(in); got != want {
			t.Fatalf("extract %q = %q, want %q", in, got, want)
		}
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	// Each connection to :memory: opens its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func queryInt64(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var value int64
	row := db.QueryRow(query)
	if err := row.Scan(&value); err != nil {
		t.Fatalf("query int value: %v", err)
	}
	return value
}

func queryString(t *testing.T, db *sql.DB, query string) string {
	t.Helper()
	var value string
	row := db.QueryRow(query)
	if err := row.Scan(&value); err != nil {
		t.Fatalf("query string value: %v", err)
	}
	return value
}

func tableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	query := "SELECT name FROM sqlite_master WHERE type='table' AND name = ?"
	var name string
	row := db.QueryRow(query, tableName)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false
		}
		t.Fatalf("check table exists: %v", err)
	}
	return name == tableName
}
