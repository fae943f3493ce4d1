package spreadsheet_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hjonck/leadscout/pkg/classify"
	"github.com/hjonck/leadscout/pkg/leads"
	"github.com/hjonck/leadscout/pkg/spreadsheet"
)

func TestSinkWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	sink, err := spreadsheet.NewSink(path, "", []string{"director_name", "company"})
	require.NoError(t, err)

	classification := classify.Classification{
		Ethnicity:  classify.African,
		Confidence: 0.9,
		Method:     classify.MethodRuleBased,
	}
	results := []leads.Result{
		{
			Lead: leads.Lead{
				RowIndex:     1,
				DirectorName: "Thabo Nkosi",
				Fields:       map[string]string{"director_name": "Thabo Nkosi", "company": "Acme"},
			},
			Classification: &classification,
			Status:         leads.StatusSuccess,
			Attempts:       1,
		},
	}

	require.NoError(t, sink.WriteBatch(context.Background(), results))
	require.NoError(t, sink.Finish(context.Background()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "director_name", rows[0][0])
	assert.Equal(t, "ethnicity", rows[0][2])
	assert.Equal(t, "Thabo Nkosi", rows[1][0])
	assert.Equal(t, "african", rows[1][2])
}

func TestSinkFinishIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	sink, err := spreadsheet.NewSink(path, "", []string{"director_name"})
	require.NoError(t, err)

	require.NoError(t, sink.Finish(context.Background()))
	require.NoError(t, sink.Finish(context.Background()))
}
