// Package spreadsheet implements leads.Source and leads.Sink against
// .xlsx workbooks using excelize.
// Reads stream row by row via excelize's row iterator to keep memory
// bounded independent of row count; writes go through a StreamWriter
// whose rows are appended as each batch commits and only finalized
// (flushed and saved) on Finish, via a temp-file-then-rename swap so a
// crash mid-write never corrupts a previously valid output file.
package spreadsheet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hjonck/leadscout/pkg/leads"
)

var directorNameHeaders = []string{"director_name", "directorname", "director name", "name"}

// Source reads Lead rows from a single sheet of an .xlsx workbook. The
// first row is treated as the header row; directorNameHeaders lists the
// header spellings recognized as the classification field, first match
// wins.
type Source struct {
	path  string
	sheet string
}

// NewSource opens path to validate it exists and is readable, and picks
// sheet (empty selects the workbook's first sheet).
func NewSource(path, sheet string) (*Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: opening %q: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("spreadsheet: %q has no sheets", path)
		}
		sheet = sheets[0]
	}

	return &Source{path: path, sheet: sheet}, nil
}

// TotalRows counts data rows (excluding the header) by streaming the
// sheet once without buffering it in memory.
func (s *Source) TotalRows(ctx context.Context) (int64, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("spreadsheet: opening %q: %w", s.path, err)
	}
	defer f.Close()

	rows, err := f.Rows(s.sheet)
	if err != nil {
		return 0, fmt.Errorf("spreadsheet: reading sheet %q: %w", s.sheet, err)
	}
	defer rows.Close()

	var count int64
	seenHeader := false
	for rows.Next() {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !seenHeader {
			seenHeader = true
			continue
		}
		count++
	}
	return count, nil
}

// Fingerprint hashes the workbook's content together with its path, so
// identical content at a different path is treated as distinct work and
// an edited file at the same path invalidates a stale lock's fingerprint.
func (s *Source) Fingerprint(ctx context.Context) (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("spreadsheet: opening %q for fingerprint: %w", s.path, err)
	}
	defer f.Close()

	h := sha256.New()
	h.Write([]byte(s.path))
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("spreadsheet: hashing %q: %w", s.path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Headers returns the sheet's header row, in column order, for a Sink
// to mirror as passthrough output columns.
func (s *Source) Headers(ctx context.Context) ([]string, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: opening %q: %w", s.path, err)
	}
	defer f.Close()

	rows, err := f.Rows(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: reading sheet %q: %w", s.sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("spreadsheet: %q sheet %q has no header row", s.path, s.sheet)
	}
	return rows.Columns()
}

// Rows streams leads whose RowIndex >= startRow, 1-based over data rows
// (the header is row 0 and never emitted).
func (s *Source) Rows(ctx context.Context, startRow int64) (<-chan leads.Lead, <-chan error) {
	out := make(chan leads.Lead)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)

		f, err := excelize.OpenFile(s.path)
		if err != nil {
			errCh <- fmt.Errorf("spreadsheet: opening %q: %w", s.path, err)
			return
		}
		defer f.Close()

		rows, err := f.Rows(s.sheet)
		if err != nil {
			errCh <- fmt.Errorf("spreadsheet: reading sheet %q: %w", s.sheet, err)
			return
		}
		defer rows.Close()

		var headers []string
		directorCol := -1
		var rowIndex int64

		for rows.Next() {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			cols, err := rows.Columns()
			if err != nil {
				errCh <- fmt.Errorf("spreadsheet: reading row columns: %w", err)
				return
			}

			if headers == nil {
				headers = cols
				directorCol = findDirectorNameColumn(headers)
				continue
			}

			rowIndex++
			if rowIndex < startRow {
				continue
			}

			lead := leads.Lead{RowIndex: rowIndex, Fields: make(map[string]string, len(headers))}
			for i, header := range headers {
				var cell string
				if i < len(cols) {
					cell = cols[i]
				}
				lead.Fields[header] = cell
				if i == directorCol {
					lead.DirectorName = cell
				}
			}

			select {
			case out <- lead:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh
}

func findDirectorNameColumn(headers []string) int {
	for i, h := range headers {
		lower := strings.ToLower(strings.TrimSpace(h))
		for _, candidate := range directorNameHeaders {
			if lower == candidate {
				return i
			}
		}
	}
	return -1
}
