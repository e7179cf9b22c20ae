package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

type migrationFile struct {
	version int64
	name    string
	path    string
}

// scanDir lists the .sql migrations in dir ordered by version. Files that
// do not follow the naming scheme and repeated versions are errors.
func scanDir(dir string) ([]migrationFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	byVersion := map[int64]string{}
	var files []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version, err := ParseVersion(m[1])
		if err != nil {
			return nil, err
		}
		if prev, ok := byVersion[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name)
		}
		byVersion[version] = name
		files = append(files, migrationFile{version: version, name: name, path: filepath.Join(dir, name)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// ValidateDir checks every migration is named YYYYMMDDHHMMSS_name.sql, has a
// unique version and carries an Up section followed by a Down section.
func ValidateDir(dir string) error {
	files, err := scanDir(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}
	for _, f := range files {
		b, err := os.ReadFile(f.path)
		if err != nil {
			return fmt.Errorf("read file %q: %w", f.path, err)
		}
		txt := string(b)
		up := strings.Index(txt, upMarker)
		down := strings.Index(txt, downMarker)
		switch {
		case up < 0:
			return fmt.Errorf("migration %q missing %q", f.name, upMarker)
		case down < 0:
			return fmt.Errorf("migration %q missing %q", f.name, downMarker)
		case down < up:
			return fmt.Errorf("migration %q has its Down section before Up", f.name)
		}
	}
	return nil
}

// LatestVersion is the highest version in dir, or zero when it holds none.
func LatestVersion(dir string) (int64, error) {
	files, err := scanDir(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, nil
	}
	return files[len(files)-1].version, nil
}
