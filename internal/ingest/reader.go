package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("file has no header row")
	ErrRowLimit          = errors.New("row limit exceeded")
)

// Sheet is the first worksheet of an uploaded file.
type Sheet struct {
	Headers []string
	Rows    [][]string
}

// ReadSheet parses .xlsx or .csv bytes. Spreadsheet cells are read raw so
// date cells arrive as serial numbers.
func ReadSheet(filename string, data []byte, maxRows int) (Sheet, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(data)
	case ".csv":
		records, err = readCSV(data)
	default:
		return Sheet{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return Sheet{}, err
	}
	if len(records) == 0 {
		return Sheet{}, ErrEmptyFile
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = normalizeHeader(h)
	}
	rows := records[1:]
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	// Interior blank rows are kept so row numbers still match the sheet, but
	// only data rows count against the cap.
	if maxRows > 0 {
		data := 0
		for _, row := range rows {
			if !blankRow(row) {
				data++
			}
		}
		if data > maxRows {
			return Sheet{}, fmt.Errorf("%w: %d rows, max %d", ErrRowLimit, data, maxRows)
		}
	}
	return Sheet{Headers: headers, Rows: rows}, nil
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = sniffDelimiter(data)

	rows := make([][]string, 0, 1024)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// Italian exports commonly use ';'. Pick whichever separator dominates the
// header line.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// blankRow reports whether every cell is empty.
func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
