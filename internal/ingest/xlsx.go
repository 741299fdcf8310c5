package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// workbook is the minimal view of an .xlsx package needed to read cell text.
type workbook struct {
	zr     *zip.Reader
	sheets []sheetEntry
	rels   map[string]string
	shared []string
}

type sheetEntry struct {
	name string
	id   int
	rid  string
}

func openWorkbook(content []byte) (*workbook, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	wb := &workbook{zr: zr}
	wb.sheets = parseSheetEntries(wb.part("xl/workbook.xml"))
	wb.rels = parseRelTargets(wb.part("xl/_rels/workbook.xml.rels"))
	wb.shared = parseSharedStrings(wb.part("xl/sharedStrings.xml"))
	return wb, nil
}

func (wb *workbook) part(name string) []byte {
	for _, f := range wb.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		return b
	}
	return nil
}

func (wb *workbook) sheetNames() []string {
	out := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		out[i] = s.name
	}
	return out
}

// rows returns every row of the named sheet, or of the first sheet when name is empty.
func (wb *workbook) rows(name string) ([][]string, error) {
	target := ""
	if name != "" {
		for _, s := range wb.sheets {
			if strings.EqualFold(s.name, name) {
				target = relPartPath(wb.rels[s.rid])
				break
			}
		}
		if target == "" {
			return nil, fmt.Errorf("sheet %q not found (available: %s)", name, strings.Join(wb.sheetNames(), ", "))
		}
	} else if len(wb.sheets) > 0 {
		target = relPartPath(wb.rels[wb.sheets[0].rid])
	}
	if target == "" || target == "xl" {
		target = "xl/worksheets/sheet1.xml"
	}
	data := wb.part(target)
	if data == nil {
		return nil, fmt.Errorf("xlsx: missing worksheet %s", target)
	}
	rr := &sheetReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: wb.shared}
	var out [][]string
	for {
		row, ok := rr.next()
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

func parseSheetEntries(data []byte) []sheetEntry {
	var out []sheetEntry
	eachStart(data, func(se xml.StartElement) {
		if se.Name.Local != "sheet" {
			return
		}
		var s sheetEntry
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.name = a.Value
			case "sheetId":
				s.id = leadingInt(a.Value)
			case "id":
				s.rid = a.Value
			}
		}
		out = append(out, s)
	})
	return out
}

func parseRelTargets(data []byte) map[string]string {
	out := map[string]string{}
	eachStart(data, func(se xml.StartElement) {
		if se.Name.Local != "Relationship" {
			return
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	})
	return out
}

func eachStart(data []byte, fn func(xml.StartElement)) {
	if len(data) == 0 {
		return
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		if se, ok := tok.(xml.StartElement); ok {
			fn(se)
		}
	}
}

// parseSharedStrings concatenates every <t> run of each <si>, so rich text comes back whole.
func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	inT := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inT {
				buf.Write(el)
			}
		}
	}
}

// sheetReader streams rows out of a worksheet part. Missing cells come back as "".
type sheetReader struct {
	dec    *xml.Decoder
	shared []string
}

func (r *sheetReader) next() ([]string, bool) {
	var row []string
	inRow := false
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Local == "row":
				inRow = true
				row = row[:0]
			case inRow && el.Name.Local == "c":
				var ref, typ string
				for _, a := range el.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				col := columnIndex(ref)
				if col < 0 {
					col = len(row)
				}
				for len(row) <= col {
					row = append(row, "")
				}
				row[col] = r.cellText(typ)
			}
		case xml.EndElement:
			if el.Name.Local == "row" {
				return row, true
			}
		}
	}
}

func (r *sheetReader) cellText(typ string) string {
	var val string
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "v" || el.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, err := r.dec.Token()
					if err != nil {
						break
					}
					if end, ok := tk.(xml.EndElement); ok && (end.Name.Local == "v" || end.Name.Local == "t") {
						break
					}
					if cd, ok := tk.(xml.CharData); ok {
						sb.Write(cd)
					}
				}
				val += sb.String()
			}
		case xml.EndElement:
			if el.Name.Local != "c" {
				continue
			}
			if typ == "s" {
				i := leadingInt(val)
				if i >= 0 && i < len(r.shared) {
					return r.shared[i]
				}
				return ""
			}
			return val
		}
	}
}

// columnIndex turns a cell reference like "C12" into a 0-based column, or -1.
func columnIndex(ref string) int {
	idx := 0
	n := 0
	for _, c := range strings.ToUpper(ref) {
		if c < 'A' || c > 'Z' {
			break
		}
		idx = idx*26 + int(c-'A'+1)
		n++
	}
	if n == 0 {
		return -1
	}
	return idx - 1
}

func leadingInt(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// relPartPath maps a relationship target to its zip entry name.
func relPartPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
