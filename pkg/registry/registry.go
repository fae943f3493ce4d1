// Package registry provides a read-only CSV ingest of a company registry
// extract, mapping registration numbers to passthrough fields a Lead can
// be enriched with (registered address, registered name). It does not
// participate in classification.
package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one registry entry, keyed by registration number.
type Record struct {
	RegistrationNumber string
	RegisteredName     string
	RegisteredAddress  string
	Fields             map[string]string
}

// Registry is an in-memory index loaded once from a CSV extract at
// process start; it is immutable for the lifetime of a run, matching
// the Dictionary Store's load-once-then-immutable contract.
type Registry struct {
	byRegistrationNumber map[string]Record
}

var recognizedColumns = map[string]string{
	"registration_number": "registration_number",
	"reg_number":          "registration_number",
	"registered_name":     "registered_name",
	"company_name":        "registered_name",
	"registered_address":  "registered_address",
	"address":             "registered_address",
}

// Load reads a CSV file into a Registry. The first row must be a
// header; recognized columns map case-insensitively per
// recognizedColumns, anything else is kept as an opaque passthrough
// field.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: opening %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("registry: reading header from %q: %w", path, err)
	}

	roles := make([]string, len(header))
	regNumberCol := -1
	for i, col := range header {
		role, ok := recognizedColumns[strings.ToLower(strings.TrimSpace(col))]
		if !ok {
			role = ""
		}
		roles[i] = role
		if role == "registration_number" {
			regNumberCol = i
		}
	}
	if regNumberCol < 0 {
		return nil, fmt.Errorf("registry: %q has no registration_number column", path)
	}

	index := make(map[string]Record)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("registry: reading row from %q: %w", path, err)
		}

		rec := Record{Fields: make(map[string]string, len(row))}
		for i, value := range row {
			if i >= len(header) {
				continue
			}
			switch roles[i] {
			case "registration_number":
				rec.RegistrationNumber = value
			case "registered_name":
				rec.RegisteredName = value
			case "registered_address":
				rec.RegisteredAddress = value
			default:
				rec.Fields[header[i]] = value
			}
		}
		if rec.RegistrationNumber == "" {
			continue
		}
		index[rec.RegistrationNumber] = rec
	}

	return &Registry{byRegistrationNumber: index}, nil
}

// Lookup returns the registry record for regNumber, if present. Never
// fails; an unknown number simply reports false.
func (r *Registry) Lookup(regNumber string) (*Record, bool, error) {
	rec, ok := r.byRegistrationNumber[regNumber]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

// Len reports how many records the registry indexed.
func (r *Registry) Len() int { return len(r.byRegistrationNumber) }
