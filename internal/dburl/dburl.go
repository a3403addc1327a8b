// ABOUTME: Connection URL validation and driver DSN conversion.
// ABOUTME: Opens database/sql handles for MySQL and PostgreSQL from URLs.
package dburl

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// ValidatePostgres checks that raw is a usable PostgreSQL connection URL.
func ValidatePostgres(raw string) error {
	if raw == "" {
		return fmt.Errorf("postgres URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse postgres URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("postgres URL must start with postgresql:// (got scheme %q)", u.Scheme)
	}
	return nil
}

// MySQLDSN converts a mysql:// URL into the DSN format the go-sql-driver
// expects. Defaults: localhost:3306, user root, utf8mb4 charset.
func MySQLDSN(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("mysql URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql URL: %w", err)
	}
	if u.Scheme != "mysql" {
		return "", fmt.Errorf("mysql URL must start with mysql:// (got scheme %q)", u.Scheme)
	}

	user := "root"
	pass := ""
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			user = name
		}
		pass, _ = u.User.Password()
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "3306"
	}

	dbName := strings.TrimPrefix(u.Path, "/")

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true", user, pass, host, port, dbName), nil
}

// OpenPostgres opens and pings a PostgreSQL connection.
func OpenPostgres(raw string) (*sql.DB, error) {
	if err := ValidatePostgres(raw); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", raw)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}

// OpenMySQL opens and pings a MySQL connection.
func OpenMySQL(raw string) (*sql.DB, error) {
	dsn, err := MySQLDSN(raw)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return db, nil
}
