// ABOUTME: Locates generated Django migration files under a project root.
// ABOUTME: Deletes them best-effort while preserving __init__.py package markers.
package cleaner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DirName is the reserved directory name Django stores generated
	// migrations in.
	DirName = "migrations"

	// ProtectedMarker is the package marker file that must survive cleanup.
	// Matching is case-sensitive.
	ProtectedMarker = "__init__.py"

	// DefaultRoot is the conventional search root when none is given.
	DefaultRoot = "apps"
)

// ErrRootNotFound is returned when the search root does not exist or is not
// a directory. Nothing has been deleted when this is returned.
var ErrRootNotFound = errors.New("root directory not found")

// Removal records the outcome of one deletion attempt.
type Removal struct {
	Name string
	Err  error
}

// DirResult holds the removals attempted in one migrations directory.
type DirResult struct {
	Path     string
	Removals []Removal
}

// Removed returns the number of successful deletions in this directory.
func (d *DirResult) Removed() int {
	n := 0
	for _, r := range d.Removals {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Report aggregates results across all discovered migration directories.
type Report struct {
	Root string
	Dirs []DirResult
}

// Removed returns the total number of files actually deleted.
func (r *Report) Removed() int {
	n := 0
	for _, d := range r.Dirs {
		n += d.Removed()
	}
	return n
}

// Failed returns the number of deletion attempts that errored.
func (r *Report) Failed() int {
	n := 0
	for _, d := range r.Dirs {
		n += len(d.Removals) - d.Removed()
	}
	return n
}

// CheckRoot verifies the search root exists and is a directory.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}
	return nil
}

// FindMigrationDirs walks root and returns every directory named
// "migrations", at any depth, in discovery order.
func FindMigrationDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == DirName {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return dirs, nil
}

// IsCandidate reports whether a file name looks like a generated migration
// source file. The protected marker is never a candidate.
func IsCandidate(name string) bool {
	if name == ProtectedMarker {
		return false
	}
	return strings.HasSuffix(name, ".py") || strings.HasSuffix(name, ".pyc")
}

// CleanDir deletes the candidate files directly inside dir. Deletion is
// best-effort: a failed unlink is recorded and the remaining candidates are
// still attempted. Only listing the directory itself is fatal.
func CleanDir(dir string) (*DirResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	result := &DirResult{Path: dir}
	for _, entry := range entries {
		if entry.IsDir() || !IsCandidate(entry.Name()) {
			continue
		}
		removal := Removal{Name: entry.Name()}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			removal.Err = err
		}
		result.Removals = append(result.Removals, removal)
	}
	return result, nil
}

// Clean runs the full cleanup: validate root, discover migration
// directories, and delete generated files in each. The returned report's
// Removed count is the number of files actually deleted, not the number of
// candidates found.
func Clean(root string) (*Report, error) {
	if err := CheckRoot(root); err != nil {
		return nil, err
	}

	dirs, err := FindMigrationDirs(root)
	if err != nil {
		return nil, err
	}

	report := &Report{Root: root}
	for _, dir := range dirs {
		result, err := CleanDir(dir)
		if err != nil {
			return nil, err
		}
		report.Dirs = append(report.Dirs, *result)
	}
	return report, nil
}
