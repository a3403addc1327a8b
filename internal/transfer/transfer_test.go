// ABOUTME: Tests for the batch table copier using SQLite on both sides.
// ABOUTME: Covers table selection, dry runs, batching, and skip handling.
package transfer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const userSchema = `CREATE TABLE auth_user (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL,
	email TEXT
)`

func openTestDB(t *testing.T, dir, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to open %s: %v", name, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("Failed to exec %q: %v", query, err)
	}
}

func seedUsers(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	mustExec(t, db, userSchema)
	for i := 1; i <= n; i++ {
		mustExec(t, db, "INSERT INTO auth_user (id, username, email) VALUES (?, ?, ?)",
			i, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i))
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func TestRunCopiesRows(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	dst := openTestDB(t, dir, "dst.db")
	seedUsers(t, src, 3)
	mustExec(t, dst, userSchema)

	m := New(src, dst, SQLite(), SQLite(), Options{})
	report, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Stats.TablesMigrated != 1 {
		t.Errorf("TablesMigrated = %d, want 1", report.Stats.TablesMigrated)
	}
	if report.Stats.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", report.Stats.TotalRows)
	}
	if len(report.Stats.FailedTables) != 0 {
		t.Errorf("FailedTables = %v, want none", report.Stats.FailedTables)
	}
	if got := countRows(t, dst, "auth_user"); got != 3 {
		t.Errorf("Destination has %d rows, want 3", got)
	}

	var username string
	if err := dst.QueryRow("SELECT username FROM auth_user WHERE id = 2").Scan(&username); err != nil {
		t.Fatalf("Failed to read copied row: %v", err)
	}
	if username != "user2" {
		t.Errorf("username = %q, want user2", username)
	}

	if report.RunID == "" {
		t.Error("Report is missing a run ID")
	}
	if report.Elapsed() < 0 {
		t.Errorf("Elapsed() = %v, want >= 0", report.Elapsed())
	}
}

func TestDryRunLeavesDestinationUntouched(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	dst := openTestDB(t, dir, "dst.db")
	seedUsers(t, src, 5)
	mustExec(t, dst, userSchema)

	m := New(src, dst, SQLite(), SQLite(), Options{DryRun: true})
	report, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !report.DryRun {
		t.Error("Report should be marked as a dry run")
	}
	if report.Stats.TotalRows != 5 {
		t.Errorf("Dry run TotalRows = %d, want 5 (counted, not copied)", report.Stats.TotalRows)
	}
	if got := countRows(t, dst, "auth_user"); got != 0 {
		t.Errorf("Dry run wrote %d rows to destination", got)
	}
}

func TestTablesExcludesSystemAndSkipped(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	mustExec(t, src, "CREATE TABLE auth_user (id INTEGER PRIMARY KEY)")
	mustExec(t, src, "CREATE TABLE blog_post (id INTEGER PRIMARY KEY)")
	mustExec(t, src, "CREATE TABLE django_migrations (id INTEGER PRIMARY KEY)")
	mustExec(t, src, "CREATE TABLE django_session (id INTEGER PRIMARY KEY)")
	mustExec(t, src, "CREATE TABLE django_admin_log (id INTEGER PRIMARY KEY)")

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "system tables always excluded",
			want: []string{"auth_user", "blog_post"},
		},
		{
			name: "include filter",
			opts: Options{Tables: []string{"blog_post"}},
			want: []string{"blog_post"},
		},
		{
			name: "skip filter",
			opts: Options{SkipTables: []string{"blog_post"}},
			want: []string{"auth_user"},
		},
		{
			name: "include cannot resurrect system tables",
			opts: Options{Tables: []string{"django_session", "auth_user"}},
			want: []string{"auth_user"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(src, nil, SQLite(), SQLite(), tt.opts)
			got, err := m.Tables()
			if err != nil {
				t.Fatalf("Tables failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Tables() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tables() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestMissingDestinationTableSkipped(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	dst := openTestDB(t, dir, "dst.db")
	seedUsers(t, src, 2)
	// Destination intentionally has no auth_user table

	m := New(src, dst, SQLite(), SQLite(), Options{})
	report, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Stats.TablesSkipped != 1 {
		t.Errorf("TablesSkipped = %d, want 1", report.Stats.TablesSkipped)
	}
	if report.Stats.TablesMigrated != 0 {
		t.Errorf("TablesMigrated = %d, want 0", report.Stats.TablesMigrated)
	}
}

func TestEmptyTableSkipped(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	dst := openTestDB(t, dir, "dst.db")
	mustExec(t, src, userSchema)
	mustExec(t, dst, userSchema)

	m := New(src, dst, SQLite(), SQLite(), Options{})
	report, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Stats.TablesSkipped != 1 {
		t.Errorf("TablesSkipped = %d, want 1", report.Stats.TablesSkipped)
	}
	if report.Stats.TotalRows != 0 {
		t.Errorf("TotalRows = %d, want 0", report.Stats.TotalRows)
	}
}

func TestBatchingCopiesAllRows(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	dst := openTestDB(t, dir, "dst.db")
	seedUsers(t, src, 10)
	mustExec(t, dst, userSchema)

	// Batch size smaller than the row count forces multiple batches
	m := New(src, dst, SQLite(), SQLite(), Options{BatchSize: 3})
	report, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Stats.TotalRows != 10 {
		t.Errorf("TotalRows = %d, want 10", report.Stats.TotalRows)
	}
	if got := countRows(t, dst, "auth_user"); got != 10 {
		t.Errorf("Destination has %d rows, want 10", got)
	}
}

func TestConflictingRowsDoNotAbortTable(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	src := openTestDB(t, dir, "src.db")
	dst := openTestDB(t, dir, "dst.db")
	seedUsers(t, src, 3)
	mustExec(t, dst, userSchema)
	mustExec(t, dst, "INSERT INTO auth_user (id, username, email) VALUES (2, 'existing', 'keep@example.com')")

	m := New(src, dst, SQLite(), SQLite(), Options{})
	report, err := m.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Stats.FailedTables) != 0 {
		t.Errorf("FailedTables = %v, want none", report.Stats.FailedTables)
	}
	if got := countRows(t, dst, "auth_user"); got != 3 {
		t.Errorf("Destination has %d rows, want 3", got)
	}

	// The pre-existing row wins under DO NOTHING
	var username string
	if err := dst.QueryRow("SELECT username FROM auth_user WHERE id = 2").Scan(&username); err != nil {
		t.Fatalf("Failed to read row: %v", err)
	}
	if username != "existing" {
		t.Errorf("username = %q, want existing", username)
	}
}

func TestConvertRow(t *testing.T) {
	in := []any{
		nil,
		[]byte("hello"),
		[]byte{0xff, 0xfe},
		int64(42),
		"already a string",
	}
	out := convertRow(in)

	if out[0] != nil {
		t.Errorf("nil should pass through, got %v", out[0])
	}
	if s, ok := out[1].(string); !ok || s != "hello" {
		t.Errorf("valid UTF-8 bytes should become a string, got %#v", out[1])
	}
	if _, ok := out[2].([]byte); !ok {
		t.Errorf("invalid UTF-8 should stay []byte, got %#v", out[2])
	}
	if out[3] != int64(42) {
		t.Errorf("int64 should pass through, got %v", out[3])
	}
	if out[4] != "already a string" {
		t.Errorf("string should pass through, got %v", out[4])
	}
}

func TestSQLiteDialectIntrospection(t *testing.T) {
	dir, err := os.MkdirTemp("", "transfer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	db := openTestDB(t, dir, "meta.db")
	mustExec(t, db, userSchema)

	d := SQLite()

	tables, err := d.ListTables(db)
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(tables) != 1 || tables[0] != "auth_user" {
		t.Errorf("ListTables = %v, want [auth_user]", tables)
	}

	cols, err := d.TableColumns(db, "auth_user")
	if err != nil {
		t.Fatalf("TableColumns failed: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("TableColumns returned %d columns, want 3", len(cols))
	}
	if cols[0].Name != "id" || !cols[0].PrimaryKey {
		t.Errorf("First column = %+v, want primary key id", cols[0])
	}
	if cols[1].PrimaryKey || cols[2].PrimaryKey {
		t.Error("Non-key columns flagged as primary keys")
	}

	exists, err := d.TableExists(db, "auth_user")
	if err != nil || !exists {
		t.Errorf("TableExists(auth_user) = %v, %v, want true", exists, err)
	}
	exists, err = d.TableExists(db, "nope")
	if err != nil || exists {
		t.Errorf("TableExists(nope) = %v, %v, want false", exists, err)
	}
}
