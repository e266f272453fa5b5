package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"fjacquet/networth-sync/internal/parsererror"
)

// ExpectedFormat describes accepted input in error messages.
const ExpectedFormat = "header row with a date column (date or timestamp, DD/MM/YYYY) and a value column (value or balance, 1.234,56 or 1234,56), separated by ',' or ';'"

// ExpectedColumns lists the accepted column names.
var ExpectedColumns = []string{"date", "timestamp", "value", "balance"}

// observationRow maps one CSV line. Cells stay strings so a bad value drops
// only its row.
type observationRow struct {
	Date  string `csv:"date,timestamp"`
	Value string `csv:"value,balance"`
}

// recordReader feeds already split records to gocsv.
type recordReader struct {
	records [][]string
	pos     int
}

func (r *recordReader) Read() ([]string, error) {
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *recordReader) ReadAll() ([][]string, error) {
	rest := r.records[r.pos:]
	r.pos = len(r.records)
	return rest, nil
}

// DetectDelimiter picks ';' or ',' from the header line, whichever occurs
// more often outside quotes. Ties go to ','.
func DetectDelimiter(header string) rune {
	commas, semicolons := 0, 0
	quoted := false
	for _, c := range header {
		switch c {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				commas++
			}
		case ';':
			if !quoted {
				semicolons++
			}
		}
	}
	if semicolons > commas {
		return ';'
	}
	return ','
}

// readRows splits the input and unmarshals every data row. The returned
// delimiter is the one detected.
func readRows(source string, data []byte) ([]observationRow, rune, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	header, err := firstLine(data)
	if err != nil {
		return nil, 0, err
	}
	if strings.TrimSpace(header) == "" {
		return nil, 0, &parsererror.InvalidFormatError{Source: source, ExpectedFormat: ExpectedFormat, Msg: "file is empty"}
	}
	delimiter := DetectDelimiter(header)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, delimiter, &parsererror.InvalidFormatError{Source: source, ExpectedFormat: ExpectedFormat, Msg: err.Error()}
	}

	for i := range records[0] {
		records[0][i] = strings.ToLower(strings.TrimSpace(records[0][i]))
	}
	if err := checkHeader(records[0]); err != nil {
		return nil, delimiter, &parsererror.InvalidFormatError{Source: source, ExpectedFormat: ExpectedFormat, Msg: err.Error()}
	}
	if len(records) == 1 {
		return nil, delimiter, nil
	}

	var rows []observationRow
	if err := gocsv.UnmarshalCSV(&recordReader{records: records}, &rows); err != nil {
		return nil, delimiter, fmt.Errorf("unmarshal %s: %w", source, err)
	}
	return rows, delimiter, nil
}

func firstLine(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", scanner.Err()
}

func checkHeader(header []string) error {
	has := map[string]bool{}
	for _, h := range header {
		has[h] = true
	}
	var missing []string
	if !has["date"] && !has["timestamp"] {
		missing = append(missing, "date")
	}
	if !has["value"] && !has["balance"] {
		missing = append(missing, "value")
	}
	if len(missing) > 0 {
		return errors.New("missing column(s): " + strings.Join(missing, ", ") + "; found " + strings.Join(header, ", "))
	}
	return nil
}
