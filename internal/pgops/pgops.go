// ABOUTME: PostgreSQL pre-flight checks and destructive schema reset.
// ABOUTME: Operates on an open connection; URL handling lives in dburl.
package pgops

import (
	"database/sql"
	"fmt"
	"strings"
)

// ServerInfo holds the probe results of a connection check.
type ServerInfo struct {
	Version   string
	Database  string
	User      string
	CanCreate bool
}

// Check probes the server the way the pre-migration checklist requires:
// version, current database, current user, and CREATE privilege on the
// public schema.
func Check(db *sql.DB) (*ServerInfo, error) {
	info := &ServerInfo{}

	if err := db.QueryRow("SELECT version()").Scan(&info.Version); err != nil {
		return nil, fmt.Errorf("query server version: %w", err)
	}
	if err := db.QueryRow("SELECT current_database()").Scan(&info.Database); err != nil {
		return nil, fmt.Errorf("query current database: %w", err)
	}
	if err := db.QueryRow("SELECT current_user").Scan(&info.User); err != nil {
		return nil, fmt.Errorf("query current user: %w", err)
	}
	if err := db.QueryRow("SELECT has_schema_privilege(current_user, 'public', 'CREATE')").Scan(&info.CanCreate); err != nil {
		return nil, fmt.Errorf("query schema privilege: %w", err)
	}

	return info, nil
}

// ShortVersion trims a full version() string to its first comma field,
// e.g. "PostgreSQL 16.2 on x86_64..., compiled by ..." -> "PostgreSQL 16.2 on x86_64...".
func ShortVersion(full string) string {
	if i := strings.Index(full, ","); i >= 0 {
		return full[:i]
	}
	return full
}

// ResetStep is one statement of the schema reset, with an operator-facing
// description.
type ResetStep struct {
	Description string
	SQL         string
}

// ResetSteps drops everything in the public schema and recreates it with
// the standard grants. Order matters.
var ResetSteps = []ResetStep{
	{"Dropping all tables", "DROP SCHEMA public CASCADE"},
	{"Creating fresh schema", "CREATE SCHEMA public"},
	{"Granting permissions to postgres", "GRANT ALL ON SCHEMA public TO postgres"},
	{"Granting permissions to public", "GRANT ALL ON SCHEMA public TO public"},
}

// Reset executes the reset steps in order, reporting each through logf
// before it runs. The first failing statement aborts the reset.
func Reset(db *sql.DB, logf func(format string, args ...any)) error {
	for _, step := range ResetSteps {
		if logf != nil {
			logf("%s...", step.Description)
		}
		if _, err := db.Exec(step.SQL); err != nil {
			return fmt.Errorf("%s: %w", step.SQL, err)
		}
	}
	return nil
}

// Confirm reports whether the operator's answer authorizes a destructive
// step. Only the literal "yes" (any case, surrounding space ignored) counts.
func Confirm(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}
