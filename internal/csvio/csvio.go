// Package csvio reads the input identifier list.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hazyhaar/regscan/internal/lookup"
)

// LoadIdentifiers reads CMP codes from the first column of a CSV file.
// Blank rows and blank first cells are skipped; no deduplication is
// performed (repeated codes are re-resolved, the store upsert makes
// that harmless).
func LoadIdentifiers(path string) ([]lookup.Identifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvio: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows may carry trailing columns

	var ids []lookup.Identifier
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvio: read %s: %w", path, err)
		}
		if len(row) == 0 {
			continue
		}
		code := strings.TrimSpace(row[0])
		if code == "" {
			continue
		}
		ids = append(ids, lookup.Identifier(code))
	}
	return ids, nil
}
