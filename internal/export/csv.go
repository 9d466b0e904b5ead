// Package export writes the table view's rows to files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/quake-watch/internal/views"
)

// WriteCSV writes a header line followed by one line per row. Multi-value
// cells keep their embedded newlines; encoding/csv quotes them.
func WriteCSV(w io.Writer, rows []views.TableRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(views.TableColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile creates path, including parent directories, and writes rows
// to it.
func WriteCSVFile(path string, rows []views.TableRow) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return WriteCSV(f, rows)
}
