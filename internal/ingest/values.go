package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// honorifics are stripped from the end of names, longest first.
var honorifics = []string{"様方", "さま", "サマ", "様", "さん", "殿"}

// NormalizeName folds a patient name to the form used for identity keys:
// NFKC, narrow latin and digits, wide kana, no whitespace, no trailing honorific,
// lower-case latin.
func NormalizeName(s string) string {
	s = width.Fold.String(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '・' {
			return -1
		}
		return r
	}, s)
	for _, h := range honorifics {
		if strings.HasSuffix(s, h) && len(s) > len(h) {
			s = strings.TrimSuffix(s, h)
			break
		}
	}
	return strings.ToLower(s)
}

// headerKey is the comparison form for column headers.
func headerKey(s string) string {
	s = strings.ToLower(width.Fold.String(norm.NFKC.String(s)))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			return -1
		}
		return r
	}, s)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006年1月2日 15:04",
	"2006年1月2日 15時04分",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"2006.01.02",
	"20060102",
	"2006年1月2日",
}

// excelEpoch is day 0 of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// fromExcelSerial reads spreadsheet serial day numbers such as 45413.5.
func fromExcelSerial(s string, loc *time.Location) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 20000 || f > 80000 {
		return time.Time{}, false
	}
	days := math.Floor(f)
	secs := math.Round((f - days) * 86400)
	d := excelEpoch.AddDate(0, 0, int(days))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, int(secs), 0, loc), true
}

// parseTimestamp reads a wall-clock or offset timestamp; zone-less values are in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(norm.NFKC.String(s))
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timestampLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, true
		}
	}
	if t, ok := fromExcelSerial(s, loc); ok {
		return t, true
	}
	return time.Time{}, false
}

// parseDate reads a calendar date, or the date part of a timestamp, as midnight in loc.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(norm.NFKC.String(s))
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, true
		}
	}
	if t, ok := parseTimestamp(s, loc); ok {
		y, m, d := t.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

// canonicalTimestamp renders s as RFC3339 with offset; unparsable input is returned trimmed.
func canonicalTimestamp(s string, loc *time.Location) string {
	if t, ok := parseTimestamp(s, loc); ok {
		return t.In(loc).Format(time.RFC3339)
	}
	return strings.TrimSpace(s)
}

// canonicalDate renders s as YYYY-MM-DD; unparsable input is returned trimmed.
func canonicalDate(s string, loc *time.Location) string {
	if t, ok := parseDate(s, loc); ok {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(s)
}

// parseHour reads "9", "09", "9時", "09:30", "9:00-9:30" or a full timestamp.
// It returns -1 when no hour can be read; range checks happen downstream.
func parseHour(s string, loc *time.Location) int {
	s = strings.TrimSpace(norm.NFKC.String(s))
	if s == "" {
		return -1
	}
	if t, ok := parseTimestamp(s, loc); ok && strings.ContainsAny(s, "-/年") {
		return t.In(loc).Hour()
	}
	// spreadsheet time cells arrive as a fraction of a day, datetimes as serials
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.Contains(s, ".") {
		if f >= 0 && f < 1 {
			return int(math.Floor(f*24 + 1e-9))
		}
		if t, ok := fromExcelSerial(s, loc); ok {
			return t.Hour()
		}
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || end > 2 {
		return -1
	}
	h, err := strconv.Atoi(s[:end])
	if err != nil {
		return -1
	}
	return h
}

// parseNumber reads a count cell. Thousands separators, full-width digits and
// trailing units like 件 are tolerated; blank is zero.
func parseNumber(s string) (float64, bool) {
	raw := strings.TrimSpace(norm.NFKC.String(s))
	if raw == "" || raw == "-" {
		return 0, true
	}
	raw = strings.TrimRightFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' })
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.ReplaceAll(raw, " ", "")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
