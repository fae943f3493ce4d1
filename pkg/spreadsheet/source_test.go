package spreadsheet_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hjonck/leadscout/pkg/spreadsheet"
)

func writeFixture(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, val))
		}
	}

	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestTotalRowsExcludesHeader(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"director_name", "company"},
		{"Thabo Nkosi", "Acme"},
		{"Pieter van der Merwe", "Beta"},
	})

	src, err := spreadsheet.NewSource(path, "")
	require.NoError(t, err)

	total, err := src.TotalRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestRowsStreamsFromStartRow(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"director_name", "company"},
		{"Thabo Nkosi", "Acme"},
		{"Pieter van der Merwe", "Beta"},
		{"Fatima Cassim", "Gamma"},
	})

	src, err := spreadsheet.NewSource(path, "")
	require.NoError(t, err)

	out, errCh := src.Rows(context.Background(), 2)
	var seen []string
	for lead := range out {
		seen = append(seen, lead.DirectorName)
		assert.GreaterOrEqual(t, lead.RowIndex, int64(2))
	}
	require.NoError(t, drainErr(errCh))
	assert.Equal(t, []string{"Pieter van der Merwe", "Fatima Cassim"}, seen)
}

func TestRowsCapturesPassthroughFields(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"director_name", "company"},
		{"Thabo Nkosi", "Acme"},
	})

	src, err := spreadsheet.NewSource(path, "")
	require.NoError(t, err)

	out, errCh := src.Rows(context.Background(), 1)
	lead := <-out
	require.NoError(t, drainErr(errCh))
	assert.Equal(t, "Thabo Nkosi", lead.DirectorName)
	assert.Equal(t, "Acme", lead.Fields["company"])
}

func TestFingerprintDiffersForDifferentContent(t *testing.T) {
	pathA := writeFixture(t, [][]string{{"director_name"}, {"Thabo Nkosi"}})
	pathB := writeFixture(t, [][]string{{"director_name"}, {"Pieter van der Merwe"}})

	srcA, err := spreadsheet.NewSource(pathA, "")
	require.NoError(t, err)
	srcB, err := spreadsheet.NewSource(pathB, "")
	require.NoError(t, err)

	fpA, err := srcA.Fingerprint(context.Background())
	require.NoError(t, err)
	fpB, err := srcB.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpB)
}

func TestFingerprintStableForSameFile(t *testing.T) {
	path := writeFixture(t, [][]string{{"director_name"}, {"Thabo Nkosi"}})
	src, err := spreadsheet.NewSource(path, "")
	require.NoError(t, err)

	fp1, err := src.Fingerprint(context.Background())
	require.NoError(t, err)
	fp2, err := src.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func drainErr(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
