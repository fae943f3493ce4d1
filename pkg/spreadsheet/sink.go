package spreadsheet

import (
	"context"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/hjonck/leadscout/pkg/leads"
)

// classificationColumns are appended after the passthrough columns, in
// this fixed order, as the output classification fields.
var classificationColumns = []string{
	"ethnicity", "confidence", "method", "processing_ms", "provider", "cost",
	"processing_status", "error_kind", "error_message", "attempts",
}

// Sink writes Results to a new .xlsx workbook via a StreamWriter. Rows
// must arrive in increasing RowIndex order; the batch runner is
// responsible for replaying already-committed results (on a resumed
// run) ahead of newly processed ones, since a StreamWriter is
// append-only and cannot be reopened mid-file.
type Sink struct {
	finalPath string
	tempPath  string
	sheet     string
	f         *excelize.File
	sw        *excelize.StreamWriter
	headers   []string
	nextRow   int64
	finished  bool
}

// NewSink starts a new workbook, writes headers (the passthrough columns
// followed by classificationColumns) as row 1, and returns a Sink ready
// for WriteBatch. Nothing is written to path or path+".part" until Finish.
func NewSink(path, sheet string, passthroughHeaders []string) (*Sink, error) {
	if sheet == "" {
		sheet = "Sheet1"
	}
	tempPath := path + ".part"

	f := excelize.NewFile()
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("spreadsheet: creating sheet %q: %w", sheet, err)
		}
		f.DeleteSheet("Sheet1")
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("spreadsheet: creating stream writer: %w", err)
	}

	headers := append(append([]string{}, passthroughHeaders...), classificationColumns...)
	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		f.Close()
		return nil, fmt.Errorf("spreadsheet: writing header row: %w", err)
	}

	return &Sink{
		finalPath: path,
		tempPath:  tempPath,
		sheet:     sheet,
		f:         f,
		sw:        sw,
		headers:   headers,
		nextRow:   2,
	}, nil
}

// WriteBatch appends each result as one row, in order. RowIndex n maps
// to spreadsheet row n+1 (row 1 is the header).
func (s *Sink) WriteBatch(ctx context.Context, results []leads.Result) error {
	for _, r := range results {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		row := make([]interface{}, 0, len(s.headers))
		for _, h := range s.headers[:len(s.headers)-len(classificationColumns)] {
			row = append(row, r.Lead.Fields[h])
		}
		row = append(row, classificationCells(r)...)

		cell, err := excelize.CoordinatesToCellName(1, int(s.nextRow))
		if err != nil {
			return fmt.Errorf("spreadsheet: computing cell for row %d: %w", s.nextRow, err)
		}
		if err := s.sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("spreadsheet: writing row %d: %w", r.Lead.RowIndex, err)
		}
		s.nextRow++
	}
	return nil
}

func classificationCells(r leads.Result) []interface{} {
	var ethnicity, method, provider string
	var confidence, cost float64
	var processingMS int64
	if r.Classification != nil {
		ethnicity = string(r.Classification.Ethnicity)
		method = string(r.Classification.Method)
		provider = r.Classification.Provider
		confidence = r.Classification.Confidence
		cost = r.Classification.Cost
		processingMS = r.Classification.ProcessingMS
	}
	return []interface{}{
		ethnicity, confidence, method, processingMS, provider, cost,
		string(r.Status), r.ErrorKind, r.ErrorMessage, r.Attempts,
	}
}

// Finish flushes the stream writer, saves to the temp path, and
// atomically renames it over the final path. Safe to call more than
// once.
func (s *Sink) Finish(ctx context.Context) error {
	if s.finished {
		return nil
	}
	s.finished = true
	defer s.f.Close()

	if err := s.sw.Flush(); err != nil {
		return fmt.Errorf("spreadsheet: flushing stream writer: %w", err)
	}
	if err := s.f.SaveAs(s.tempPath); err != nil {
		return fmt.Errorf("spreadsheet: saving %q: %w", s.tempPath, err)
	}
	if err := os.Rename(s.tempPath, s.finalPath); err != nil {
		return fmt.Errorf("spreadsheet: renaming %q to %q: %w", s.tempPath, s.finalPath, err)
	}
	return nil
}
