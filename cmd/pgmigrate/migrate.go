// ABOUTME: CLI command for copying table data from MySQL to PostgreSQL.
// ABOUTME: Supports dry runs, table filters, batching, and a JSON run report.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ariyaops/pgmigrate/internal/config"
	"github.com/ariyaops/pgmigrate/internal/dburl"
	"github.com/ariyaops/pgmigrate/internal/pgops"
	"github.com/ariyaops/pgmigrate/internal/transfer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	migrateMySQLURL    string
	migratePostgresURL string
	migrateBatchSize   int
	migrateTables      string
	migrateSkipTables  string
	migrateDryRun      bool
	migrateReportPath  string
	migrateYes         bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy table data from MySQL to PostgreSQL",
	Long: `Copy data from the MySQL source into the PostgreSQL destination.

Django migrations handle the schema; this command only moves rows. The
destination tables must therefore already exist (run makemigrations and
migrate first). Tables missing on the destination are skipped with a
warning.

Django bookkeeping tables (django_migrations, django_session,
django_admin_log) are never copied.

Rows are copied in batches; the destination's triggers are disabled during
the load and serial sequences are realigned afterwards. Rows already
present on the destination are left alone (ON CONFLICT DO NOTHING).

IMPORTANT:

  - Run with --dry-run first to see what would be migrated
  - The source database is never modified
  - A failed table does not stop the run; failures are listed at the end

EXAMPLES:

  pgmigrate migrate --dry-run
  pgmigrate migrate --batch-size 500
  pgmigrate migrate --tables auth_user,adminportal_company
  pgmigrate migrate --skip-tables audit_log --report run.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		mysqlURL := cfg.ResolveMySQLURL(migrateMySQLURL)
		postgresURL := cfg.ResolvePostgresURL(migratePostgresURL)

		if migrateDryRun {
			color.Yellow("Dry run mode - no changes will be made")
			fmt.Println()
		} else if !migrateYes {
			color.Yellow("This will copy data into the PostgreSQL database.")
			fmt.Print("Are you sure you want to continue? (yes/no): ")
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if !pgops.Confirm(answer) {
				color.Red("Operation cancelled")
				return nil
			}
		}

		fmt.Println("Connecting to databases...")
		src, err := dburl.OpenMySQL(mysqlURL)
		if err != nil {
			return err
		}
		defer src.Close()
		color.Green("✓ Connected to MySQL")

		dst, err := dburl.OpenPostgres(postgresURL)
		if err != nil {
			return err
		}
		defer dst.Close()
		color.Green("✓ Connected to PostgreSQL")

		opts := transfer.Options{
			BatchSize:  migrateBatchSize,
			DryRun:     migrateDryRun,
			Tables:     splitList(migrateTables),
			SkipTables: splitList(migrateSkipTables),
			Logf: func(format string, a ...any) {
				fmt.Printf(format+"\n", a...)
			},
		}

		m := transfer.New(src, dst, transfer.MySQL(), transfer.Postgres(), opts)
		report, err := m.Run()
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("Migration summary")
		fmt.Printf("  Run ID:          %s\n", report.RunID)
		fmt.Printf("  Tables migrated: %d\n", report.Stats.TablesMigrated)
		fmt.Printf("  Tables skipped:  %d\n", report.Stats.TablesSkipped)
		fmt.Printf("  Total rows:      %d\n", report.Stats.TotalRows)
		fmt.Printf("  Elapsed:         %s\n", report.Elapsed().Round(time.Millisecond))

		if migrateReportPath != "" {
			if err := writeReport(report, migrateReportPath); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Printf("  Report:          %s\n", migrateReportPath)
		}

		if n := len(report.Stats.FailedTables); n > 0 {
			color.Red("%d table(s) failed: %s", n, strings.Join(report.Stats.FailedTables, ", "))
			return fmt.Errorf("%d table(s) failed to migrate", n)
		}

		color.Green("Migration complete")
		return nil
	},
}

// splitList parses a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func writeReport(report *transfer.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func init() {
	migrateCmd.Flags().StringVar(&migrateMySQLURL, "mysql-url", "", "MySQL connection URL (default: DATABASE_MYSQL_URL)")
	migrateCmd.Flags().StringVar(&migratePostgresURL, "postgres-url", "", "PostgreSQL connection URL (default: DATABASE_POSTGRES_URL)")
	migrateCmd.Flags().IntVar(&migrateBatchSize, "batch-size", transfer.DefaultBatchSize, "number of rows per batch")
	migrateCmd.Flags().StringVar(&migrateTables, "tables", "", "comma-separated list of tables to migrate (default: all)")
	migrateCmd.Flags().StringVar(&migrateSkipTables, "skip-tables", "", "comma-separated list of tables to skip")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	migrateCmd.Flags().StringVar(&migrateReportPath, "report", "", "write a JSON run report to this file")
	migrateCmd.Flags().BoolVar(&migrateYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(migrateCmd)
}
