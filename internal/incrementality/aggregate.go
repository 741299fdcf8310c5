// Package incrementality folds reservation, visit, ad-conversion and survey
// records into per-segment hourly and daily series and relates ad activity
// to true first visits.
package incrementality

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/clinicpulse-cli/internal/identity"
	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
)

const dateLayout = "2006-01-02"

// Options controls one aggregation run.
type Options struct {
	// Location is the clinic's wall-clock zone; nil means UTC.
	Location *time.Location
	// From and To bound the window as inclusive YYYY-MM-DD dates; empty means unbounded.
	From, To string
	// Identity selects the fields that make two records the same patient.
	Identity identity.Builder
	// Classifier maps departments and ad categories to segments; nil uses segment.Classify.
	Classifier *segment.Classifier
}

// Input is an in-memory snapshot of every record kind.
type Input struct {
	Reservations []records.Reservation
	Karte        []records.KarteRecord
	Listing      []records.ListingCategory
	Surveys      []records.SurveyEntry
}

// InputFromSet adapts a flattened snapshot.
func InputFromSet(s records.Set) Input {
	return Input{Reservations: s.Reservations, Karte: s.Karte, Listing: s.Listing, Surveys: s.Surveys}
}

type cellKey struct {
	date string
	hour int
}

type hourlyAcc struct {
	reservations int
	trueFirst    int
	listingCV    float64
}

type surveyAcc struct {
	responses float64
	search    float64
}

// groupAcc is the mutable state for one group; it never leaves Build.
type groupAcc struct {
	cells   map[cellKey]*hourlyAcc
	surveys map[string]*surveyAcc
	totals  Totals
}

func newGroupAcc() *groupAcc {
	return &groupAcc{cells: make(map[cellKey]*hourlyAcc), surveys: make(map[string]*surveyAcc)}
}

func (g *groupAcc) cell(date string, hour int) *hourlyAcc {
	k := cellKey{date, hour}
	c := g.cells[k]
	if c == nil {
		c = &hourlyAcc{}
		g.cells[k] = c
	}
	return c
}

func (g *groupAcc) survey(date string) *surveyAcc {
	s := g.surveys[date]
	if s == nil {
		s = &surveyAcc{}
		g.surveys[date] = s
	}
	return s
}

// reservationEvent is a reservation that survived validation.
type reservationEvent struct {
	seq    int
	date   string
	hour   int
	at     time.Time
	key    string
	seg    segment.Segment
	tagged bool
}

type builder struct {
	opt    Options
	loc    *time.Location
	groups map[segment.Group]*groupAcc
	diag   Diagnostics
}

// Build aggregates a snapshot into per-group hourly and daily series.
// Malformed rows are counted in Diagnostics and otherwise ignored.
func Build(in Input, opt Options) *Dataset {
	b := &builder{opt: opt, loc: opt.Location, groups: make(map[segment.Group]*groupAcc, len(segment.Groups))}
	if b.loc == nil {
		b.loc = time.UTC
	}
	for _, g := range segment.Groups {
		b.groups[g] = newGroupAcc()
	}

	events, sightings := b.collectReservations(in.Reservations)
	sightings = append(sightings, b.collectKarte(in.Karte)...)
	firstSeen := identity.BuildFirstSeen(sightings)
	b.diag.IdentitiesFirstSeen = len(firstSeen)

	b.countReservations(events, firstSeen)
	b.addListing(in.Listing)
	b.addSurveys(in.Surveys)

	ds := &Dataset{Diagnostics: b.diag}
	ds.Dates = b.span()
	if len(ds.Dates) > 0 {
		ds.From, ds.To = ds.Dates[0], ds.Dates[len(ds.Dates)-1]
	}
	for _, g := range segment.Groups {
		*ds.Segment(g) = b.groups[g].snapshot(g)
	}
	return ds
}

func (b *builder) classify(label string) segment.Segment {
	if b.opt.Classifier != nil {
		return b.opt.Classifier.Classify(label)
	}
	return segment.Classify(label)
}

func (b *builder) inWindow(date string) bool {
	if b.opt.From != "" && date < b.opt.From {
		return false
	}
	if b.opt.To != "" && date > b.opt.To {
		return false
	}
	return true
}

// targets returns the accumulators a segment contributes to: always all, plus its own group.
func (b *builder) targets(s segment.Segment) []*groupAcc {
	g, ok := s.Group()
	return b.groupTargets(g, ok)
}

func (b *builder) groupTargets(g segment.Group, ok bool) []*groupAcc {
	out := []*groupAcc{b.groups[segment.GroupAll]}
	if ok && g != segment.GroupAll {
		out = append(out, b.groups[g])
	}
	return out
}

// collectReservations validates reservations and returns the countable events plus
// every identity sighting, in or out of the window.
func (b *builder) collectReservations(rs []records.Reservation) ([]reservationEvent, []identity.Event) {
	events := make([]reservationEvent, 0, len(rs))
	sightings := make([]identity.Event, 0, len(rs))
	for i, r := range rs {
		b.diag.ReservationsSeen++
		at, hasTime := parseInstant(r.Timestamp(), b.loc)
		date, hour := "", r.ReservationHour
		if r.ReservationDate != "" {
			d, ok := parseDate(r.ReservationDate, b.loc)
			if ok {
				date = d.Format(dateLayout)
			}
			// a timestamp on the same local day supplies a missing hour
			if local := at.In(b.loc); date != "" && hour < 0 && hasTime && local.Format(dateLayout) == date {
				hour = local.Hour()
			}
		} else if hasTime {
			local := at.In(b.loc)
			date, hour = local.Format(dateLayout), local.Hour()
		}
		key, _ := b.opt.Identity.Key(identity.Fields{
			PatientNumber:  r.PatientNumber,
			NameNormalized: r.PatientNameNormalized,
			Name:           r.PatientName,
			BirthDate:      r.BirthDate,
		})
		if date == "" || hour < 0 || hour > 23 {
			b.diag.DroppedReservations++
			if hasTime && key != "" {
				sightings = append(sightings, identity.Event{Key: key, OccurredAt: at})
			}
			continue
		}
		if !hasTime {
			d, _ := time.ParseInLocation(dateLayout, date, b.loc)
			at = d.Add(time.Duration(hour) * time.Hour)
		}
		if key != "" {
			sightings = append(sightings, identity.Event{Key: key, OccurredAt: at})
		}
		if !b.inWindow(date) {
			b.diag.OutOfWindow++
			continue
		}
		events = append(events, reservationEvent{
			seq:    i,
			date:   date,
			hour:   hour,
			at:     at,
			key:    key,
			seg:    b.classify(r.Department),
			tagged: strings.Contains(r.VisitType, "初診"),
		})
	}
	return events, sightings
}

func (b *builder) collectKarte(ks []records.KarteRecord) []identity.Event {
	out := make([]identity.Event, 0, len(ks))
	for _, k := range ks {
		b.diag.KarteSeen++
		key, ok := b.opt.Identity.Key(identity.Fields{
			PatientNumber:  k.PatientNumber,
			NameNormalized: k.PatientNameNormalized,
			Name:           k.PatientName,
			BirthDate:      k.BirthDate,
		})
		d, okDate := parseDate(k.Date, b.loc)
		if !ok || !okDate {
			b.diag.UnusableKarte++
			continue
		}
		out = append(out, identity.Event{Key: key, OccurredAt: d})
	}
	return out
}

// countReservations walks events chronologically. An identity is credited as a
// true first visit once, on its earliest reservation dated on its first-seen day.
func (b *builder) countReservations(events []reservationEvent, firstSeen identity.FirstSeenIndex) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].seq < events[j].seq
	})
	credited := make(map[string]bool)
	for _, ev := range events {
		first := false
		if ev.key == "" {
			b.diag.UnresolvedIdentities++
		} else if !credited[ev.key] && firstSeen.IsFirstDay(ev.key, ev.at, b.loc) {
			credited[ev.key] = true
			first = true
		}
		if ev.seg == segment.None {
			b.diag.Unclassified++
		}
		for _, g := range b.targets(ev.seg) {
			c := g.cell(ev.date, ev.hour)
			c.reservations++
			g.totals.Reservations++
			if first {
				c.trueFirst++
				g.totals.TrueFirst++
			}
			if ev.key == "" {
				g.totals.Unresolved++
			}
			if ev.tagged {
				g.totals.TaggedFirst++
			}
		}
	}
}

func (b *builder) addListing(cats []records.ListingCategory) {
	for _, cat := range cats {
		seg := b.classify(cat.Category)
		if seg == segment.None {
			b.diag.UnclassifiedListing++
		}
		targets := b.targets(seg)
		for _, day := range cat.Days {
			d, ok := parseDate(day.Date, b.loc)
			if !ok {
				b.diag.DroppedListingDays++
				continue
			}
			date := d.Format(dateLayout)
			if !b.inWindow(date) {
				continue
			}
			for h, cv := range day.HourlyCV {
				if cv == 0 || math.IsNaN(cv) || math.IsInf(cv, 0) {
					continue
				}
				for _, g := range targets {
					g.cell(date, h).listingCV += cv
					g.totals.ListingCV += cv
				}
			}
		}
	}
}

func (b *builder) addSurveys(entries []records.SurveyEntry) {
	for _, e := range entries {
		d, ok := parseDate(e.Date, b.loc)
		if !ok {
			b.diag.DroppedSurveys++
			continue
		}
		date := d.Format(dateLayout)
		if !b.inWindow(date) {
			continue
		}
		// sorted keys keep float sums identical across runs
		keys := make([]string, 0, len(e.Channels))
		for k := range e.Channels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, ch := range keys {
			v := e.Channels[ch]
			if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			search := records.SearchChannels[ch]
			for _, g := range b.groupTargets(surveyGroup(e.FileType, ch)) {
				s := g.survey(date)
				s.responses += v
				g.totals.SurveyResponses += v
				if search {
					s.search += v
					g.totals.SurveySearch += v
				}
			}
		}
	}
}

// surveyGroup routes a channel counter: endoscopy files go to endoscopy,
// outpatient fever channels to fever and the remaining outpatient channels to general.
// Unknown file types only reach the all group.
func surveyGroup(fileType, channel string) (segment.Group, bool) {
	switch strings.TrimSpace(fileType) {
	case records.SurveyEndoscopy:
		return segment.GroupEndoscopy, true
	case records.SurveyOutpatient:
		if strings.HasPrefix(channel, "fever") {
			return segment.GroupFever, true
		}
		return segment.GroupGeneral, true
	}
	return "", false
}

// span is the configured window, or the observed date range where a bound is open.
func (b *builder) span() []string {
	from, to := b.opt.From, b.opt.To
	if from == "" || to == "" {
		lo, hi := "", ""
		for _, g := range b.groups {
			for k := range g.cells {
				lo, hi = widen(lo, hi, k.date)
			}
			for d := range g.surveys {
				lo, hi = widen(lo, hi, d)
			}
		}
		if from == "" {
			from = lo
		}
		if to == "" {
			to = hi
		}
	}
	if from == "" || to == "" {
		return nil
	}
	start, err1 := time.Parse(dateLayout, from)
	end, err2 := time.Parse(dateLayout, to)
	if err1 != nil || err2 != nil || end.Before(start) {
		return nil
	}
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(dateLayout))
	}
	return out
}

func widen(lo, hi, d string) (string, string) {
	if lo == "" || d < lo {
		lo = d
	}
	if hi == "" || d > hi {
		hi = d
	}
	return lo, hi
}

// snapshot freezes the accumulator into sorted, immutable points.
func (g *groupAcc) snapshot(group segment.Group) SegmentDataset {
	out := SegmentDataset{Group: group, Totals: g.totals}
	keys := make([]cellKey, 0, len(g.cells))
	for k := range g.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].hour < keys[j].hour
	})
	out.Hourly = make([]HourlyPoint, 0, len(keys))
	daily := make(map[string]*DailyPoint)
	for _, k := range keys {
		c := g.cells[k]
		out.Hourly = append(out.Hourly, HourlyPoint{
			Date:         k.date,
			Hour:         k.hour,
			Reservations: c.reservations,
			TrueFirst:    c.trueFirst,
			ListingCV:    c.listingCV,
		})
		d := daily[k.date]
		if d == nil {
			d = &DailyPoint{Date: k.date}
			daily[k.date] = d
		}
		d.Reservations += c.reservations
		d.TrueFirst += c.trueFirst
		d.ListingCV += c.listingCV
	}
	for date, s := range g.surveys {
		d := daily[date]
		if d == nil {
			d = &DailyPoint{Date: date}
			daily[date] = d
		}
		d.SurveyResponses = s.responses
		d.SurveySearch = s.search
	}
	out.Daily = make([]DailyPoint, 0, len(daily))
	for _, d := range daily {
		out.Daily = append(out.Daily, *d)
	}
	sort.Slice(out.Daily, func(i, j int) bool { return out.Daily[i].Date < out.Daily[j].Date })
	return out
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseInstant reads a canonical timestamp; zone-less values are taken in loc.
func parseInstant(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range instantLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDate reads a YYYY-MM-DD date (or the date part of a timestamp) as midnight in loc.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return time.Time{}, false
	}
	if len(s) > len(dateLayout) {
		if t, ok := parseInstant(s, loc); ok {
			y, m, d := t.In(loc).Date()
			return time.Date(y, m, d, 0, 0, 0, 0, loc), true
		}
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
