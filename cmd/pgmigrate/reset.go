// ABOUTME: CLI command for dropping and recreating the public schema.
// ABOUTME: Prompts for confirmation before destroying data.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ariyaops/pgmigrate/internal/config"
	"github.com/ariyaops/pgmigrate/internal/dburl"
	"github.com/ariyaops/pgmigrate/internal/pgops"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	resetPostgresURL string
	resetYes         bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the PostgreSQL database",
	Long: `Drop every table in the public schema and recreate it empty, with the
standard grants, so Django migrations can rebuild the schema from scratch.

The connection URL is resolved like for check: --postgres-url, then
DATABASE_POSTGRES_URL, then DATABASE_URL.

CAUTION:

  This destroys ALL data in the database. You will be asked to type "yes"
  before anything runs; --yes skips the prompt for scripted use.

AFTER RESET:

  1. pgmigrate clean apps
  2. python manage.py makemigrations
  3. python manage.py migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		url := cfg.ResolvePostgresURL(resetPostgresURL)
		if err := dburl.ValidatePostgres(url); err != nil {
			return err
		}

		color.Yellow("This will drop all tables and recreate the schema!")
		if !resetYes {
			fmt.Print("Are you sure you want to continue? (yes/no): ")
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if !pgops.Confirm(answer) {
				color.Red("Operation cancelled")
				return nil
			}
		}

		db, err := dburl.OpenPostgres(url)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := pgops.Reset(db, func(format string, a ...any) {
			fmt.Printf(format+"\n", a...)
		}); err != nil {
			return fmt.Errorf("reset database: %w", err)
		}

		fmt.Println()
		color.Green("Database reset complete")
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  1. pgmigrate clean apps")
		fmt.Println("  2. python manage.py makemigrations")
		fmt.Println("  3. python manage.py migrate")

		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetPostgresURL, "postgres-url", "", "PostgreSQL connection URL (default: from environment)")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}
