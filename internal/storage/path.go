package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const (
	URIScheme     = "s3://"
	DatasetPrefix = "datasets"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DatasetKey returns the object key a dataset file is published under, e.g. datasets/tiendas.parquet.
func DatasetKey(name, format string) (string, error) {
	if err := validatePathComponent(name, "dataset name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(format, "dataset format"); err != nil {
		return "", err
	}
	return path.Join(DatasetPrefix, fmt.Sprintf("%s.%s", name, format)), nil
}

// ParseURI extracts the object key from an s3://key location.
func ParseURI(location string) (string, bool) {
	location = strings.TrimSpace(location)
	if !strings.HasPrefix(location, URIScheme) {
		return "", false
	}
	key := strings.TrimPrefix(strings.TrimPrefix(location, URIScheme), "/")
	if key == "" {
		return "", false
	}
	return key, true
}

func URI(key string) string {
	return URIScheme + strings.TrimPrefix(key, "/")
}

func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
