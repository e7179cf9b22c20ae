package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// createNow is swapped in tests.
var createNow = func() time.Time { return time.Now().UTC() }

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// CreateSQLMigration writes an empty goose migration into dir and returns
// its path. The version is the current UTC time, moved past the newest
// migration already in dir so goose always applies it last.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeMigrationName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	latest, err := LatestVersion(dir)
	if err != nil {
		return "", err
	}
	version := nextVersion(createNow(), latest)

	fullpath := filepath.Join(dir, fmt.Sprintf("%d_%s.sql", version, safe))
	if _, err := os.Stat(fullpath); err == nil {
		return "", fmt.Errorf("migration already exists: %s", fullpath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %q: %w", fullpath, err)
	}

	if err := os.WriteFile(fullpath, []byte(fmt.Sprintf(migrationTemplate, safe)), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeMigrationName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// nextVersion formats now as a version, or steps one second past latest when
// the clock is behind the newest migration.
func nextVersion(now time.Time, latest int64) int64 {
	version, _ := strconv.ParseInt(now.UTC().Format(versionLayout), 10, 64)
	if version > latest {
		return version
	}
	last, err := time.Parse(versionLayout, strconv.FormatInt(latest, 10))
	if err != nil {
		return latest + 1
	}
	next, _ := strconv.ParseInt(last.Add(time.Second).Format(versionLayout), 10, 64)
	return next
}
