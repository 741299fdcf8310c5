// Package ingest turns clinic export files (CSV, TSV, XLSX; UTF-8 or Shift_JIS)
// into typed records.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
)

// Loader parses source files. The zero value reads auto-detected text in UTC
// and discards logs.
type Loader struct {
	Location *time.Location
	Encoding Encoding
	// SheetName picks an XLSX sheet; empty means the first.
	SheetName string
	// SurveyType is used when a survey file has no type column.
	SurveyType string
	Log        zerolog.Logger
}

// NewLoader returns a Loader for the clinic time zone.
func NewLoader(loc *time.Location, log zerolog.Logger) *Loader {
	return &Loader{Location: loc, Encoding: EncodingAuto, Log: log}
}

func (l *Loader) loc() *time.Location {
	if l.Location == nil {
		return time.UTC
	}
	return l.Location
}

// Load reads path and parses it as kind. An empty kind is guessed from the file name.
func (l *Loader) Load(path string, kind records.Kind) (*records.Batch, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.Parse(path, content, kind)
}

// Parse parses content that was read from name. The returned batch has no ID yet.
func (l *Loader) Parse(name string, content []byte, kind records.Kind) (*records.Batch, error) {
	if kind == "" {
		k, err := DetectKind(name)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	t, err := readTable(name, content, l.Encoding, l.SheetName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
	}
	b := &records.Batch{Kind: kind}
	switch kind {
	case records.KindReservations:
		b.Reservations, err = l.reservations(name, t)
	case records.KindKarte:
		b.Karte, err = l.karte(name, t)
	case records.KindListing:
		b.Listing, err = l.listing(name, t)
	case records.KindSurvey:
		b.Surveys, err = l.surveys(name, t)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	l.Log.Debug().Str("file", filepath.Base(name)).Str("kind", string(kind)).
		Int("rows", len(t.rows)).Int("records", b.Len()).Msg("parsed source")
	return b, nil
}

func (l *Loader) skip(name string, line int, reason string) {
	l.Log.Debug().Str("file", filepath.Base(name)).Int("row", line).Str("reason", reason).Msg("skipped row")
}

func (l *Loader) reservations(name string, t *table) ([]records.Reservation, error) {
	cols := mapColumns(t.header)
	if err := cols.require(name, records.KindReservations,
		[]field{colDepartment},
		[]field{colDate, colReceivedAt, colBookingAt, colAppointmentAt},
	); err != nil {
		return nil, err
	}
	loc := l.loc()
	out := make([]records.Reservation, 0, len(t.rows))
	for i, row := range t.rows {
		r := records.Reservation{
			Department:      t.cell(row, cols.index(colDepartment)),
			ReservationDate: canonicalDate(t.cell(row, cols.index(colDate)), loc),
			ReservationHour: -1,
			ReceivedAt:      canonicalTimestamp(t.cell(row, cols.index(colReceivedAt)), loc),
			BookingAt:       canonicalTimestamp(t.cell(row, cols.index(colBookingAt)), loc),
			AppointmentAt:   canonicalTimestamp(t.cell(row, cols.index(colAppointmentAt)), loc),
			VisitType:       t.cell(row, cols.index(colVisitType)),
			PatientNumber:   t.cell(row, cols.index(colPatientNumber)),
			PatientName:     t.cell(row, cols.index(colPatientName)),
			BirthDate:       canonicalDate(t.cell(row, cols.index(colBirthDate)), loc),
		}
		if r.Department == "" {
			l.skip(name, t.line[i], "no department")
			continue
		}
		if cols.has(colHour) {
			r.ReservationHour = parseHour(t.cell(row, cols.index(colHour)), loc)
		}
		// the slot time doubles as date and hour when the export has no separate columns
		if slot, ok := parseTimestamp(r.AppointmentAt, loc); ok {
			slot = slot.In(loc)
			if r.ReservationDate == "" {
				r.ReservationDate = slot.Format("2006-01-02")
			}
			if r.ReservationHour < 0 && r.ReservationDate == slot.Format("2006-01-02") {
				r.ReservationHour = slot.Hour()
			}
		}
		if r.PatientName != "" {
			r.PatientNameNormalized = NormalizeName(r.PatientName)
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *Loader) karte(name string, t *table) ([]records.KarteRecord, error) {
	cols := mapColumns(t.header)
	if err := cols.require(name, records.KindKarte,
		[]field{colDate},
		[]field{colPatientNumber, colPatientName},
	); err != nil {
		return nil, err
	}
	loc := l.loc()
	out := make([]records.KarteRecord, 0, len(t.rows))
	for i, row := range t.rows {
		k := records.KarteRecord{
			PatientNumber: t.cell(row, cols.index(colPatientNumber)),
			PatientName:   t.cell(row, cols.index(colPatientName)),
			BirthDate:     canonicalDate(t.cell(row, cols.index(colBirthDate)), loc),
			Date:          canonicalDate(t.cell(row, cols.index(colDate)), loc),
			Department:    t.cell(row, cols.index(colDepartment)),
		}
		if k.Date == "" {
			l.skip(name, t.line[i], "no visit date")
			continue
		}
		if k.PatientNumber == "" && k.PatientName == "" {
			l.skip(name, t.line[i], "no patient identifier")
			continue
		}
		if k.PatientName != "" {
			k.PatientNameNormalized = NormalizeName(k.PatientName)
		}
		out = append(out, k)
	}
	return out, nil
}

// hourColumn reads wide-format hour headers: "0".."23", "0時".."23時", "9:00".
func hourColumn(h string) (int, bool) {
	s := headerKey(h)
	s = strings.TrimSuffix(s, "時")
	s = strings.TrimSuffix(s, "h")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	if s == "" || len(s) > 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 23 {
		return 0, false
	}
	return n, true
}

// listing accepts a wide layout (date, category, one column per hour) or a long
// layout (date, hour, category, cv). Days are merged per category and date.
func (l *Loader) listing(name string, t *table) ([]records.ListingCategory, error) {
	cols := mapColumns(t.header)
	hourCols := map[int]int{}
	for i, h := range t.header {
		if _, known := aliasIndex[headerKey(h)]; known {
			continue
		}
		if hr, ok := hourColumn(h); ok {
			hourCols[i] = hr
		}
	}
	wide := len(hourCols) > 0
	groups := [][]field{{colDate}, {colCategory}}
	if !wide {
		groups = append(groups, []field{colHour}, []field{colCV})
	}
	if err := cols.require(name, records.KindListing, groups...); err != nil {
		return nil, err
	}

	loc := l.loc()
	type dayKey struct{ cat, date string }
	days := map[dayKey]*records.ListingDay{}
	var order []string
	seen := map[string]bool{}
	add := func(cat, date string, hour int, v float64) {
		k := dayKey{cat, date}
		d := days[k]
		if d == nil {
			d = &records.ListingDay{Date: date}
			days[k] = d
		}
		d.HourlyCV[hour] += v
		if !seen[cat] {
			seen[cat] = true
			order = append(order, cat)
		}
	}

	for i, row := range t.rows {
		cat := t.cell(row, cols.index(colCategory))
		if cat == "" {
			l.skip(name, t.line[i], "no category")
			continue
		}
		date := canonicalDate(t.cell(row, cols.index(colDate)), loc)
		if wide {
			for col, hr := range hourCols {
				v, ok := parseNumber(t.cell(row, col))
				if !ok {
					l.skip(name, t.line[i], fmt.Sprintf("bad count in hour %d", hr))
					continue
				}
				add(cat, date, hr, v)
			}
			continue
		}
		hr := parseHour(t.cell(row, cols.index(colHour)), loc)
		if hr < 0 || hr > 23 {
			l.skip(name, t.line[i], "hour out of range")
			continue
		}
		v, ok := parseNumber(t.cell(row, cols.index(colCV)))
		if !ok {
			l.skip(name, t.line[i], "bad cv")
			continue
		}
		add(cat, date, hr, v)
	}

	out := make([]records.ListingCategory, 0, len(order))
	for _, cat := range order {
		lc := records.ListingCategory{Category: cat}
		for k, d := range days {
			if k.cat == cat {
				lc.Days = append(lc.Days, *d)
			}
		}
		sort.Slice(lc.Days, func(i, j int) bool { return lc.Days[i].Date < lc.Days[j].Date })
		out = append(out, lc)
	}
	return out, nil
}

// surveys reads one entry per row: a date, optional file type and channel counters.
// Unrecognized columns are ignored.
func (l *Loader) surveys(name string, t *table) ([]records.SurveyEntry, error) {
	cols := mapColumns(t.header)
	if err := cols.require(name, records.KindSurvey, []field{colDate}); err != nil {
		return nil, err
	}
	channels := map[int]string{}
	for i, h := range t.header {
		if ch, ok := channelAliases[headerKey(h)]; ok {
			channels[i] = ch
		}
	}
	if len(channels) == 0 {
		return nil, &ColumnError{File: name, Kind: records.KindSurvey, Missing: []string{"channel columns"}}
	}
	fallback := normalizeSurveyType(l.SurveyType)
	if fallback == "" {
		fallback = surveyTypeFromName(name)
	}

	loc := l.loc()
	out := make([]records.SurveyEntry, 0, len(t.rows))
	for i, row := range t.rows {
		e := records.SurveyEntry{
			Date:     canonicalDate(t.cell(row, cols.index(colDate)), loc),
			FileType: normalizeSurveyType(t.cell(row, cols.index(colFileType))),
			Channels: make(map[string]float64, len(channels)),
		}
		if e.Date == "" {
			l.skip(name, t.line[i], "no date")
			continue
		}
		if e.FileType == "" {
			e.FileType = fallback
		}
		for col, ch := range channels {
			v, ok := parseNumber(t.cell(row, col))
			if !ok {
				l.skip(name, t.line[i], "bad count for "+ch)
				continue
			}
			if v != 0 {
				e.Channels[ch] += v
			}
		}
		out = append(out, e)
	}
	return out, nil
}
