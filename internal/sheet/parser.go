// Package sheet turns uploaded CSV and XLSX spreadsheets into canonical
// fault records.
package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpattn/reiteradas/internal/domain"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptySheet is returned when the file holds no data rows.
	ErrEmptySheet = errors.New("spreadsheet is empty or has no data rows")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// MissingColumnsError lists required columns absent from the header row.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Table is a parsed spreadsheet in canonical shape.
type Table struct {
	// Headers holds the trimmed header labels as written in the file.
	Headers []string
	// Columns holds the canonical name of each header.
	Columns []string
	// Records keeps the rows that carry both ELEMENTO and INCIDENCIA.
	Records []domain.Record
	// DroppedRows counts data rows discarded for lacking those fields.
	DroppedRows int
	// HasTerritoryColumn is set when the file carries a REGIONAL column.
	HasTerritoryColumn bool
}

// Parse reads the payload according to the file extension.
func Parse(fileName string, payload []byte) (Table, error) {
	if len(payload) == 0 {
		return Table{}, ErrEmptySheet
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	var (
		rows [][]string
		err  error
	)
	switch ext {
	case ".csv":
		rows, err = readCSV(payload)
	case ".xlsx":
		rows, err = readExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Table{}, err
	}
	return normalizeTable(rows)
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	// Raw values keep date cells as serial numbers for NormalizeDate.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func normalizeTable(rows [][]string) (Table, error) {
	headerIndex := -1
	for idx, row := range rows {
		if len(cleanRow(row)) > 0 {
			headerIndex = idx
			break
		}
	}
	if headerIndex < 0 || headerIndex == len(rows)-1 {
		return Table{}, ErrEmptySheet
	}

	headerRow := rows[headerIndex]
	table := Table{
		Headers: make([]string, len(headerRow)),
		Columns: make([]string, len(headerRow)),
		Records: []domain.Record{},
	}
	present := make(map[string]bool, len(headerRow))
	for i, label := range headerRow {
		table.Headers[i] = strings.TrimSpace(label)
		table.Columns[i] = CanonicalColumn(label)
		present[table.Columns[i]] = true
	}

	var missing []string
	for _, required := range domain.RequiredFields {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return Table{}, &MissingColumnsError{Missing: missing}
	}
	table.HasTerritoryColumn = present[domain.FieldRegional]

	for _, row := range rows[headerIndex+1:] {
		if len(cleanRow(row)) == 0 {
			continue
		}
		record := normalizeRow(padRow(row, len(table.Columns)), table.Columns)
		if record.Get(domain.FieldElemento) == "" || record.Get(domain.FieldIncidencia) == "" {
			table.DroppedRows++
			continue
		}
		table.Records = append(table.Records, record)
	}

	return table, nil
}

func normalizeRow(row []string, columns []string) domain.Record {
	record := make(domain.Record, len(columns))
	for idx, column := range columns {
		if column == "" {
			continue
		}
		value := strings.TrimSpace(row[idx])
		if column == domain.FieldData {
			value = NormalizeDate(value)
		}
		if existing, ok := record[column]; ok && existing != "" && value == "" {
			continue
		}
		record[column] = value
	}
	return record
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
