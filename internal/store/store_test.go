package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM annotations").Scan(&count); err != nil {
			t.Errorf("iteration %d: query failed: %v", i, err)
		}
		s.Close()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/bridge.db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose(t *testing.T) {
	if err := (&Store{}).Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}

	s, err := Open(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)
	if err := s.DB().Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_SingleConnectionPool(t *testing.T) {
	s := createTestStore(t)

	if got := s.DB().Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
	// Pragmas are per connection; a second pooled connection would miss them.
	for i := 0; i < 3; i++ {
		if err := s.verifyPragma("foreign_keys", "1"); err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
	}
}

func TestPragmas_AllApplied(t *testing.T) {
	if len(pragmas) != 4 {
		t.Fatalf("expected 4 pragmas, got %d", len(pragmas))
	}
	seen := make(map[string]bool)
	for _, p := range pragmas {
		if seen[p.name] {
			t.Errorf("pragma %s listed twice", p.name)
		}
		seen[p.name] = true
	}
}

// Schema table tests

func TestSchema_SessionsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "sessions")
	for _, want := range []string{"id", "title", "started_at"} {
		if !contains(columns, want) {
			t.Errorf("sessions missing column %q, got %v", want, columns)
		}
	}
}

func TestSchema_AnnotationsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "annotations")
	for _, want := range []string{"session_id", "seq", "kind", "event_type", "instance_id", "contents"} {
		if !contains(columns, want) {
			t.Errorf("annotations missing column %q, got %v", want, columns)
		}
	}
}

func TestSchema_LastObservationsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "last_observations")
	for _, want := range []string{"instance_id", "session_id", "action", "state", "config"} {
		if !contains(columns, want) {
			t.Errorf("last_observations missing column %q, got %v", want, columns)
		}
	}
}

func TestConstraint_AnnotationSeqUniquePerSession(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.db.Exec(`INSERT INTO sessions (id, title, started_at) VALUES ('s1', '', 0)`); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	insert := `INSERT INTO annotations (session_id, seq, kind, event_type, instance_id, contents) VALUES ('s1', 1, 'k', 'init', 1, '{}')`
	if _, err := s.db.Exec(insert); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(insert); err == nil {
		t.Error("expected primary key violation for duplicate (session_id, seq)")
	}
}

func TestConstraint_ForeignKeyAnnotationToSession(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO annotations (session_id, seq, kind, event_type, instance_id, contents) VALUES ('missing', 1, 'k', 'init', 1, '{}')`)
	if err == nil {
		t.Error("expected foreign key violation for unknown session")
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify user_version is set to currentSchemaVersion
	var version int
	err = s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_V1InstanceIndexExists(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "annotations")
	if !contains(indexes, "idx_annotations_instance") {
		t.Errorf("annotations table missing idx_annotations_instance, indexes: %v", indexes)
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open and close multiple times - migrations should be idempotent
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}

		// Verify version is correct each time
		var version int
		err = s.db.QueryRow("PRAGMA user_version").Scan(&version)
		if err != nil {
			t.Fatalf("failed to get user_version: %v", err)
		}

		if version != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, version, currentSchemaVersion)
		}

		s.Close()
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	// Simulate a pre-migration database (version 0)
	path := filepath.Join(t.TempDir(), "test.db")

	// Create database manually without migration
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// Apply schema but NOT migrations (simulates pre-migration state)
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	// Set version to 0 explicitly (pre-migration)
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	// Now open through our normal path - should trigger migration
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify version was upgraded
	var version int
	err = s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes := getTableIndexes(t, s.db, "annotations")
	if !contains(indexes, "idx_annotations_instance") {
		t.Errorf("expected idx_annotations_instance after migration, got indexes: %v", indexes)
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
