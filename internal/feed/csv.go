package feed

import (
	"regexp"
	"strings"
)

// DefaultCSVDelimiter separates CSV columns unless configured otherwise.
const DefaultCSVDelimiter = ';'

const csvEnclosure = `"`

var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// isNumeric reports whether s is a plain decimal number.
func isNumeric(s string) bool {
	return numericPattern.MatchString(strings.TrimSpace(s))
}

// csvField quotes non-numeric values, doubling embedded quotes. Numeric values
// stay bare unless they contain the delimiter, e.g. "1.5" with a '.' delimiter.
func csvField(v string, delimiter rune) string {
	if isNumeric(v) && !strings.ContainsRune(v, delimiter) {
		return v
	}
	return csvEnclosure + strings.ReplaceAll(v, csvEnclosure, csvEnclosure+csvEnclosure) + csvEnclosure
}

// csvRow joins fields into one line without the terminator.
func csvRow(fields []string, delimiter rune) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = csvField(f, delimiter)
	}
	return strings.Join(quoted, string(delimiter))
}

// writeCSV writes a header row of mapping keys followed by one row per record.
func writeCSV(path string, delimiter rune, m *Mapping, records []Record) (int, error) {
	if delimiter == 0 {
		delimiter = DefaultCSVDelimiter
	}

	w, err := createLineWriter(path, EncodingUTF8)
	if err != nil {
		return 0, err
	}

	w.Line(csvRow(m.Keys(), delimiter))

	entries := m.Entries()
	row := make([]string, len(entries))
	for i := range records {
		for j, e := range entries {
			row[j] = Resolve(e.Binding, &records[i])
		}
		w.Line(csvRow(row, delimiter))
	}

	if err := w.Close(); err != nil {
		return 0, err
	}
	return len(records), nil
}
