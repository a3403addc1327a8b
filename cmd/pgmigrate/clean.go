// ABOUTME: CLI command for deleting generated Django migration files.
// ABOUTME: Walks a project root and empties every migrations directory found.
package main

import (
	"fmt"
	"os"

	"github.com/ariyaops/pgmigrate/internal/cleaner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [root-directory]",
	Short: "Delete old generated migration files",
	Long: `Delete generated migration files so Django can regenerate them from
scratch against PostgreSQL.

Every directory named "migrations" under the root is searched, at any
depth, so subprojects with their own apps are covered. Inside each, all
.py and .pyc files are deleted except __init__.py, which keeps the
directory importable as a package.

The root defaults to "apps" when not given.

CAUTION:

  This permanently deletes the migration files. There is no undo. A file
  that cannot be deleted (e.g. permission denied) is reported and skipped;
  the rest of the cleanup still runs.

EXAMPLES:

  pgmigrate clean              # Clean under ./apps
  pgmigrate clean backend      # Clean under ./backend
  pgmigrate clean .            # Clean the whole working tree

AFTER CLEANUP:

  python manage.py makemigrations
  python manage.py migrate`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cleaner.DefaultRoot
		if len(args) == 1 {
			root = args[0]
		}

		if err := cleaner.CheckRoot(root); err != nil {
			color.Red("Error: %v", err)
			fmt.Println()
			fmt.Println("Usage: pgmigrate clean [root-directory]")
			fmt.Println("Example: pgmigrate clean apps")
			return err
		}

		dirs, err := cleaner.FindMigrationDirs(root)
		if err != nil {
			return fmt.Errorf("search for migration directories: %w", err)
		}

		if len(dirs) == 0 {
			color.Yellow("No migrations directories found under %s", root)
		}

		report := &cleaner.Report{Root: root}
		for _, dir := range dirs {
			fmt.Printf("Scanning %s\n", dir)

			result, err := cleaner.CleanDir(dir)
			if err != nil {
				return err
			}
			report.Dirs = append(report.Dirs, *result)

			if len(result.Removals) == 0 {
				fmt.Println("  nothing to remove")
				continue
			}
			for _, r := range result.Removals {
				if r.Err != nil {
					color.Red("  ! could not delete %s: %v", r.Name, r.Err)
					continue
				}
				color.Yellow("  ✗ deleted %s", r.Name)
			}
		}

		fmt.Println()
		color.Green("Removed %d migration file(s)", report.Removed())
		if failed := report.Failed(); failed > 0 {
			color.Red("%d file(s) could not be deleted", failed)
		}
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  python manage.py makemigrations")
		fmt.Println("  python manage.py migrate")

		markSelfExecutable()
		return nil
	},
}

// markSelfExecutable restores the executable bit on the running binary.
// Cosmetic final step; failure is ignored.
func markSelfExecutable() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	_ = os.Chmod(exe, 0755)
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
