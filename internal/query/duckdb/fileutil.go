package duckdb

import (
	"io"
	"os"
)

// writeFile stages a downloaded dataset object on local disk so DuckDB can read it by path.
func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}
