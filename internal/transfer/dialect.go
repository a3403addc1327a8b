// ABOUTME: Per-engine SQL for table introspection and bulk loading.
// ABOUTME: Implements MySQL, PostgreSQL, and SQLite dialects for the copier.
package transfer

import (
	"database/sql"
	"fmt"
	"strings"
)

// Column describes one column of a source table.
type Column struct {
	Name       string
	PrimaryKey bool
}

// Dialect abstracts the engine-specific SQL the copier needs. MySQL is only
// ever a source and PostgreSQL only ever a destination in the real
// migration, but each dialect implements both sides so the copier can be
// exercised against SQLite alone.
type Dialect interface {
	Name() string

	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(name string) string

	// Placeholder returns the parameter placeholder for 1-based position n.
	Placeholder(n int) string

	// ListTables returns all base table names, sorted.
	ListTables(db *sql.DB) ([]string, error)

	// TableColumns returns the columns of a table in ordinal order.
	TableColumns(db *sql.DB, table string) ([]Column, error)

	// TableExists reports whether the table exists.
	TableExists(db *sql.DB, table string) (bool, error)

	// InsertSuffix is appended to INSERT statements on the destination
	// (e.g. conflict handling).
	InsertSuffix() string

	// BeginLoad runs destination-side setup before bulk loading a table.
	BeginLoad(db *sql.DB, table string) error

	// EndLoad runs destination-side cleanup after loading: trigger
	// re-enable and sequence fixup where the engine needs them.
	EndLoad(db *sql.DB, table string, primaryKeys []string) error
}

// MySQL returns the dialect for a MySQL source.
func MySQL() Dialect { return mysqlDialect{} }

// Postgres returns the dialect for a PostgreSQL destination.
func Postgres() Dialect { return postgresDialect{} }

// SQLite returns the dialect used by hermetic tests.
func SQLite() Dialect { return sqliteDialect{} }

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + name + "`"
}

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) ListTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (mysqlDialect) TableColumns(db *sql.DB, table string) ([]Column, error) {
	rows, err := db.Query(`
		SELECT COLUMN_NAME, COLUMN_KEY
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, key string
		if err := rows.Scan(&name, &key); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, PrimaryKey: key == "PRI"})
	}
	return cols, rows.Err()
}

func (d mysqlDialect) TableExists(db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		AND table_name = ?`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (mysqlDialect) InsertSuffix() string { return "" }

func (mysqlDialect) BeginLoad(*sql.DB, string) error { return nil }

func (mysqlDialect) EndLoad(*sql.DB, string, []string) error { return nil }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

func (postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (postgresDialect) ListTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (postgresDialect) TableColumns(db *sql.DB, table string) ([]Column, error) {
	rows, err := db.Query(`
		SELECT c.column_name,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		           WHERE tc.table_schema = 'public'
		           AND tc.table_name = c.table_name
		           AND tc.constraint_type = 'PRIMARY KEY'
		           AND kcu.column_name = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = 'public'
		AND c.table_name = $1
		ORDER BY c.ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.PrimaryKey); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (postgresDialect) TableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`, table).Scan(&exists)
	return exists, err
}

func (postgresDialect) InsertSuffix() string { return " ON CONFLICT DO NOTHING" }

func (d postgresDialect) BeginLoad(db *sql.DB, table string) error {
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER ALL", d.QuoteIdent(table)))
	return err
}

func (d postgresDialect) EndLoad(db *sql.DB, table string, primaryKeys []string) error {
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER ALL", d.QuoteIdent(table))); err != nil {
		return err
	}

	// Realign serial sequences with the copied data. Tables keyed by UUID
	// or without a serial have no sequence; those errors are expected.
	for _, pk := range primaryKeys {
		_, _ = db.Exec(fmt.Sprintf(`
			SELECT setval(
				pg_get_serial_sequence('%s', '%s'),
				COALESCE((SELECT MAX(%s) FROM %s), 1),
				true
			)`, d.QuoteIdent(table), pk, d.QuoteIdent(pk), d.QuoteIdent(table)))
	}
	return nil
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) ListTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d sqliteDialect) TableColumns(db *sql.DB, table string) ([]Column, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{Name: name, PrimaryKey: pk > 0})
	}
	return cols, rows.Err()
}

func (sqliteDialect) TableExists(db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (sqliteDialect) InsertSuffix() string { return " ON CONFLICT DO NOTHING" }

func (sqliteDialect) BeginLoad(*sql.DB, string) error { return nil }

func (sqliteDialect) EndLoad(*sql.DB, string, []string) error { return nil }

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// quoteAll quotes a list of identifiers and joins them with commas.
func quoteAll(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
