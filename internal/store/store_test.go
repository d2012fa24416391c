package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"mappings", "reconciliation_runs", "annotations", "resolution_log", "verification_checkpoints"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

// Schema tests

func TestSchema_MappingsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "mappings")
	expected := []string{
		"id", "ordinal", "stable_id", "display_name", "state",
		"created_at", "last_verified_at", "superseded_at", "run_id",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("mappings table missing column %q", col)
		}
	}
}

func TestSchema_AnnotationsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "annotations")
	expected := []string{
		"id", "content", "sender", "created_at", "target_ordinal",
		"resolved_stable_id", "attribution_confidence", "resolved_at", "resolution_tier",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("annotations table missing column %q", col)
		}
	}
}

func TestSchema_MappingIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "mappings")
	expected := []string{
		"idx_mappings_current_ordinal",
		"idx_mappings_current_stable_id",
		"idx_mappings_ordinal_history",
		"idx_mappings_stable_id_history",
	}
	for _, idx := range expected {
		if !contains(indexes, idx) {
			t.Errorf("mappings table missing index %q", idx)
		}
	}
}

// Constraint tests

func TestConstraint_OneCurrentEntryPerOrdinal(t *testing.T) {
	s := createTestStore(t)
	insertRawRun(t, s, "run-1")

	insertRawMapping(t, s, 1, "A", "mapped", "run-1")
	_, err := s.db.Exec(`
		INSERT INTO mappings (ordinal, stable_id, display_name, state, created_at, last_verified_at, run_id)
		VALUES (1, 'B', 'B', 'mapped', 0, 0, 'run-1')
	`)
	if err == nil {
		t.Error("expected unique violation for second current entry at ordinal 1")
	}
}

func TestConstraint_StateMatchesSupersededAt(t *testing.T) {
	s := createTestStore(t)
	insertRawRun(t, s, "run-1")

	_, err := s.db.Exec(`
		INSERT INTO mappings (ordinal, stable_id, display_name, state, created_at, last_verified_at, superseded_at, run_id)
		VALUES (1, 'A', 'A', 'stale', 0, 0, NULL, 'run-1')
	`)
	if err == nil {
		t.Error("expected check violation for stale entry without superseded_at")
	}
}

func TestConstraint_TargetOrdinalImmutable(t *testing.T) {
	s := createTestStore(t)
	insertTestAnnotation(t, s, "ann-1", "alice", 3, testTime(0))

	_, err := s.db.Exec(`UPDATE annotations SET target_ordinal = 4 WHERE id = 'ann-1'`)
	if err == nil {
		t.Fatal("expected trigger to reject target_ordinal update")
	}

	// Other columns stay writable.
	if _, err := s.db.Exec(`UPDATE annotations SET resolution_tier = 'exact' WHERE id = 'ann-1'`); err != nil {
		t.Errorf("update of resolver column failed: %v", err)
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradesWriterOwnedAnnotationsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// The external writer created annotations before rosterbridge existed.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE annotations (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			sender TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			target_ordinal INTEGER NOT NULL
		);
		INSERT INTO annotations VALUES ('legacy-1', 'on leave', 'pm@example.com', 1000, 7);
	`); err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	columns := getTableColumns(t, s.db, "annotations")
	for _, col := range []string{"resolved_stable_id", "attribution_confidence", "resolved_at", "resolution_tier"} {
		if !contains(columns, col) {
			t.Errorf("migration did not add column %q", col)
		}
	}

	a, err := s.GetAnnotation(t.Context(), "legacy-1")
	if err != nil {
		t.Fatalf("GetAnnotation() failed: %v", err)
	}
	if a.TargetOrdinal != 7 || a.ResolvedStableID != nil || a.Confidence != "" {
		t.Errorf("legacy annotation = %+v, want untouched and unresolved", a)
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("failed to get user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, version, currentSchemaVersion)
		}
		s.Close()
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
