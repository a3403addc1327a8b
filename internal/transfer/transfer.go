// ABOUTME: Batch table copier between a source and destination database.
// ABOUTME: Handles table selection, dry runs, per-table isolation, and stats.
package transfer

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// systemTables are Django bookkeeping tables that are never copied:
// migrations are regenerated, sessions are temporary, and the admin log can
// be rebuilt.
var systemTables = map[string]bool{
	"django_migrations": true,
	"django_session":    true,
	"django_admin_log":  true,
}

// DefaultBatchSize is the number of rows fetched and inserted per batch.
const DefaultBatchSize = 1000

// Options controls a migration run.
type Options struct {
	// BatchSize is rows per batch; zero means DefaultBatchSize.
	BatchSize int

	// DryRun previews the migration without touching the destination.
	DryRun bool

	// Tables, when non-empty, restricts the run to these tables.
	Tables []string

	// SkipTables are excluded from the run.
	SkipTables []string

	// Logf receives progress output. Nil discards it.
	Logf func(format string, args ...any)
}

// Stats summarizes a migration run.
type Stats struct {
	TablesMigrated int      `json:"tables_migrated"`
	TablesSkipped  int      `json:"tables_skipped"`
	TotalRows      int64    `json:"total_rows"`
	FailedTables   []string `json:"failed_tables"`
}

// TableResult records the outcome for one table.
type TableResult struct {
	Name    string `json:"name"`
	Rows    int64  `json:"rows"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report is the JSON-serializable record of one migration run.
type Report struct {
	RunID       string        `json:"run_id"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Stats       Stats         `json:"stats"`
	Tables      []TableResult `json:"tables"`
}

// Elapsed returns the wall-clock duration of the run.
func (r *Report) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Migrator copies table data from a source to a destination database.
// Schema creation is not its job; the destination tables must already exist
// (Django migrations create them).
type Migrator struct {
	src  *sql.DB
	dst  *sql.DB
	srcD Dialect
	dstD Dialect
	opts Options
}

// New builds a Migrator over open connections.
func New(src, dst *sql.DB, srcDialect, dstDialect Dialect, opts Options) *Migrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Migrator{src: src, dst: dst, srcD: srcDialect, dstD: dstDialect, opts: opts}
}

func (m *Migrator) logf(format string, args ...any) {
	if m.opts.Logf != nil {
		m.opts.Logf(format, args...)
	}
}

// Tables returns the tables this run will process: every base table in the
// source, filtered by the include and skip lists, minus the Django system
// tables.
func (m *Migrator) Tables() ([]string, error) {
	all, err := m.srcD.ListTables(m.src)
	if err != nil {
		return nil, err
	}

	include := map[string]bool{}
	for _, t := range m.opts.Tables {
		include[t] = true
	}
	skip := map[string]bool{}
	for _, t := range m.opts.SkipTables {
		skip[t] = true
	}

	var tables []string
	for _, t := range all {
		if len(include) > 0 && !include[t] {
			continue
		}
		if skip[t] || systemTables[t] {
			continue
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// Run migrates all selected tables. A failure in one table is recorded and
// the run continues with the rest; Run itself only fails when the table
// list cannot be read.
func (m *Migrator) Run() (*Report, error) {
	report := &Report{
		RunID:       uuid.New().String(),
		Source:      m.srcD.Name(),
		Destination: m.dstD.Name(),
		DryRun:      m.opts.DryRun,
		StartedAt:   time.Now(),
	}

	tables, err := m.Tables()
	if err != nil {
		return nil, fmt.Errorf("fetch table list: %w", err)
	}
	m.logf("Found %d tables to migrate", len(tables))

	for _, table := range tables {
		result := m.migrateTable(table)
		report.Tables = append(report.Tables, result)

		switch {
		case result.Error != "":
			report.Stats.FailedTables = append(report.Stats.FailedTables, table)
		case result.Skipped:
			report.Stats.TablesSkipped++
		default:
			report.Stats.TablesMigrated++
			report.Stats.TotalRows += result.Rows
		}
	}

	report.FinishedAt = time.Now()
	return report, nil
}

func (m *Migrator) migrateTable(table string) TableResult {
	result := TableResult{Name: table}
	m.logf("Migrating table: %s", table)

	cols, err := m.srcD.TableColumns(m.src, table)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	var rowCount int64
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s", m.srcD.QuoteIdent(table))
	if err := m.src.QueryRow(countSQL).Scan(&rowCount); err != nil {
		result.Error = fmt.Sprintf("count rows: %v", err)
		return result
	}
	m.logf("  Columns: %d, Rows: %d", len(cols), rowCount)

	if rowCount == 0 {
		m.logf("  Skipping empty table")
		result.Skipped = true
		return result
	}

	if m.opts.DryRun {
		m.logf("  [DRY RUN] Would migrate %d rows", rowCount)
		result.Rows = rowCount
		return result
	}

	exists, err := m.dstD.TableExists(m.dst, table)
	if err != nil {
		result.Error = fmt.Sprintf("check destination table: %v", err)
		return result
	}
	if !exists {
		m.logf("  Table does not exist in destination - skipping")
		result.Skipped = true
		return result
	}

	copied, err := m.copyRows(table, cols, rowCount)
	result.Rows = copied
	if err != nil {
		result.Error = err.Error()
		return result
	}

	m.logf("  Migrated %d rows", copied)
	return result
}

// copyRows streams the table in batches of BatchSize rows.
func (m *Migrator) copyRows(table string, cols []Column, rowCount int64) (int64, error) {
	if err := m.dstD.BeginLoad(m.dst, table); err != nil {
		return 0, fmt.Errorf("prepare destination: %w", err)
	}

	names := make([]string, len(cols))
	var primaryKeys []string
	for i, c := range cols {
		names[i] = c.Name
		if c.PrimaryKey {
			primaryKeys = append(primaryKeys, c.Name)
		}
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = m.dstD.Placeholder(i + 1)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
		m.dstD.QuoteIdent(table),
		quoteAll(m.dstD, names),
		strings.Join(placeholders, ", "),
		m.dstD.InsertSuffix())

	selectSQL := fmt.Sprintf("SELECT %s FROM %s LIMIT %s OFFSET %s",
		quoteAll(m.srcD, names),
		m.srcD.QuoteIdent(table),
		m.srcD.Placeholder(1),
		m.srcD.Placeholder(2))

	var copied int64
	batchSize := int64(m.opts.BatchSize)

	for offset := int64(0); offset < rowCount; offset += batchSize {
		read, inserted, err := m.copyBatch(selectSQL, insertSQL, len(cols), batchSize, offset)
		if err != nil {
			return copied, fmt.Errorf("batch at offset %d: %w", offset, err)
		}
		if read == 0 {
			break
		}
		copied += inserted
		m.logf("  Progress: %d/%d rows", offset+read, rowCount)
	}

	if err := m.dstD.EndLoad(m.dst, table, primaryKeys); err != nil {
		return copied, fmt.Errorf("finish destination: %w", err)
	}
	return copied, nil
}

// copyBatch moves one batch inside a destination transaction. It returns the
// number of rows read from the source and the number actually inserted; a
// row the destination rejects is logged and skipped so one bad row cannot
// sink its whole table.
func (m *Migrator) copyBatch(selectSQL, insertSQL string, colCount int, limit, offset int64) (read, inserted int64, err error) {
	rows, err := m.src.Query(selectSQL, limit, offset)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch batch: %w", err)
	}
	defer rows.Close()

	tx, err := m.dst.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin destination transaction: %w", err)
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}

	for rows.Next() {
		values := make([]any, colCount)
		ptrs := make([]any, colCount)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return read, 0, fmt.Errorf("scan source row: %w", err)
		}
		read++

		if _, err := stmt.Exec(convertRow(values)...); err != nil {
			m.logf("  Error inserting row: %v", err)
			continue
		}
		inserted++
	}
	if err := rows.Err(); err != nil {
		_ = stmt.Close()
		_ = tx.Rollback()
		return read, 0, fmt.Errorf("read batch: %w", err)
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return read, 0, err
	}
	if err := tx.Commit(); err != nil {
		return read, 0, fmt.Errorf("commit batch: %w", err)
	}
	return read, inserted, nil
}

// convertRow normalizes driver values for the destination: byte slices that
// hold valid UTF-8 become strings, everything else passes through.
func convertRow(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if b, ok := v.([]byte); ok && utf8.Valid(b) {
			out[i] = string(b)
			continue
		}
		out[i] = v
	}
	return out
}
