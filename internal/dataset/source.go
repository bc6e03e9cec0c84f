package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/duckmesh/insightbot/internal/query/duckdb"
	"github.com/duckmesh/insightbot/internal/storage"
)

// Source is one table to materialize: a local file path or an object key in the configured store.
type Source struct {
	Name     string        `json:"name"`
	Location string        `json:"location"`
	Remote   bool          `json:"remote"`
	Format   duckdb.Format `json:"format"`
}

// ParseSources reads "name=location" pairs separated by commas. A location starting with s3:// names an
// object key, anything else a local path.
func ParseSources(raw string) ([]Source, error) {
	var sources []Source
	seen := map[string]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, location, ok := strings.Cut(part, "=")
		name, location = strings.TrimSpace(name), strings.TrimSpace(location)
		if !ok || name == "" || location == "" {
			return nil, fmt.Errorf("invalid dataset %q, want name=location", part)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate dataset name %q", name)
		}
		seen[name] = struct{}{}

		source := Source{Name: name, Location: location}
		if key, ok := storage.ParseURI(location); ok {
			source.Remote = true
			source.Location = key
		}
		format, err := FormatFor(source.Location)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", name, err)
		}
		source.Format = format
		sources = append(sources, source)
	}
	return sources, nil
}

func FormatFor(location string) (duckdb.Format, error) {
	switch strings.ToLower(filepath.Ext(location)) {
	case ".csv":
		return duckdb.FormatCSV, nil
	case ".parquet":
		return duckdb.FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported dataset file %q, want .csv or .parquet", location)
	}
}

// LocalPaths returns the paths of the sources read from the local filesystem.
func LocalPaths(sources []Source) []string {
	var paths []string
	for _, source := range sources {
		if !source.Remote {
			paths = append(paths, source.Location)
		}
	}
	return paths
}
