package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// table is a header row plus data rows, every row padded to the header width.
type table struct {
	header []string
	rows   [][]string
	// line is the 1-based source row of rows[i], used in logs.
	line []int
}

func (t *table) cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// readTable loads name's content as CSV, TSV or XLSX, chosen by extension.
func readTable(name string, content []byte, enc Encoding, sheet string) (*table, error) {
	var raw [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		wb, err := openWorkbook(content)
		if err != nil {
			return nil, err
		}
		if raw, err = wb.rows(sheet); err != nil {
			return nil, err
		}
	default:
		text, err := decode(content, enc)
		if err != nil {
			return nil, err
		}
		if raw, err = readDelimited(text, sniffDelimiter(name, text)); err != nil {
			return nil, err
		}
	}
	return newTable(raw), nil
}

// newTable skips leading blank rows, takes the first non-blank row as header
// and drops fully blank data rows.
func newTable(raw [][]string) *table {
	t := &table{}
	i := 0
	for i < len(raw) && blank(raw[i]) {
		i++
	}
	if i == len(raw) {
		return t
	}
	t.header = make([]string, len(raw[i]))
	for j, h := range raw[i] {
		t.header[j] = strings.TrimSpace(h)
	}
	for k := i + 1; k < len(raw); k++ {
		row := raw[k]
		if blank(row) {
			continue
		}
		if len(row) < len(t.header) {
			padded := make([]string, len(t.header))
			copy(padded, row)
			row = padded
		}
		t.rows = append(t.rows, row)
		t.line = append(t.line, k+1)
	}
	return t
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func readDelimited(text []byte, delim rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, rec)
	}
}

// sniffDelimiter uses the extension for .tsv and otherwise counts separators on the first line.
func sniffDelimiter(name string, text []byte) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	first := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	best, bestN := ',', bytes.Count(first, []byte{','})
	for _, d := range []rune{'\t', ';'} {
		if n := bytes.Count(first, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
