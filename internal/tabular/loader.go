// Package tabular loads spreadsheet and CSV files into header/row tables.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/verte-zerg/emiwiz/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IsCSV reports whether name is parsed as delimited text rather than a workbook.
func IsCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

// LoadFile reads the file at path. See Load.
func LoadFile(path string) (model.Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.Table{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only input.
			_ = cerr
		}
	}()
	return Load(filepath.Base(path), file)
}

// Load parses r as CSV when name ends in .csv and as a workbook otherwise.
// The first parsed row becomes the header row and the rest become data rows.
// An input with no rows yields an empty table and no error.
func Load(name string, r io.Reader) (model.Table, error) {
	var (
		records [][]string
		err     error
	)
	if IsCSV(name) {
		records, err = readCSV(r)
	} else {
		records, err = readWorkbook(r)
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return fromRecords(records), nil
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	var records [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlankRecord(rec) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func readWorkbook(r io.Reader) ([][]string, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			// Best-effort cleanup of excelize temp files.
			_ = cerr
		}
	}()
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isBlankRecord(row) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func fromRecords(records [][]string) model.Table {
	if len(records) == 0 {
		return model.Table{Headers: model.Row{}, Rows: []model.Row{}}
	}
	headers := make(model.Row, len(records[0]))
	for i, cell := range records[0] {
		headers[i] = model.StringValue(strings.TrimSpace(cell))
	}
	rows := make([]model.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(model.Row, len(rec))
		for i, cell := range rec {
			row[i] = model.ParseValue(cell)
		}
		rows = append(rows, row)
	}
	return model.Table{Headers: headers, Rows: rows}
}

func isBlankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
