package incrementality

import (
	"fmt"
	"sort"

	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
)

// Metric names one measured quantity of a bucket.
type Metric string

const (
	MetricReservations    Metric = "reservations"
	MetricTrueFirst       Metric = "true_first"
	MetricListingCV       Metric = "listing_cv"
	MetricSurveyResponses Metric = "survey_responses"
	MetricSurveySearch    Metric = "survey_search"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricReservations, MetricTrueFirst, MetricListingCV, MetricSurveyResponses, MetricSurveySearch:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Hourly reports whether the metric exists at hour granularity. Surveys are daily only.
func (m Metric) Hourly() bool {
	return m == MetricReservations || m == MetricTrueFirst || m == MetricListingCV
}

// HourlyPoint is one (date, hour) bucket.
type HourlyPoint struct {
	Date         string  `json:"date"`
	Hour         int     `json:"hour"`
	Reservations int     `json:"reservations"`
	TrueFirst    int     `json:"true_first"`
	ListingCV    float64 `json:"listing_cv"`
}

func (p HourlyPoint) value(m Metric) float64 {
	switch m {
	case MetricReservations:
		return float64(p.Reservations)
	case MetricTrueFirst:
		return float64(p.TrueFirst)
	case MetricListingCV:
		return p.ListingCV
	}
	return 0
}

// DailyPoint is the rollup of one date's hourly buckets plus that date's surveys.
type DailyPoint struct {
	Date            string  `json:"date"`
	Reservations    int     `json:"reservations"`
	TrueFirst       int     `json:"true_first"`
	ListingCV       float64 `json:"listing_cv"`
	SurveyResponses float64 `json:"survey_responses"`
	SurveySearch    float64 `json:"survey_search"`
}

func (p DailyPoint) value(m Metric) float64 {
	switch m {
	case MetricReservations:
		return float64(p.Reservations)
	case MetricTrueFirst:
		return float64(p.TrueFirst)
	case MetricListingCV:
		return p.ListingCV
	case MetricSurveyResponses:
		return p.SurveyResponses
	case MetricSurveySearch:
		return p.SurveySearch
	}
	return 0
}

// Totals sums a group over the whole window.
type Totals struct {
	Reservations    int     `json:"reservations"`
	TrueFirst       int     `json:"true_first"`
	TaggedFirst     int     `json:"tagged_first"`
	Unresolved      int     `json:"unresolved"`
	ListingCV       float64 `json:"listing_cv"`
	SurveyResponses float64 `json:"survey_responses"`
	SurveySearch    float64 `json:"survey_search"`
}

// SegmentDataset holds one group's sparse hourly buckets and daily rollup,
// both sorted by date (and hour).
type SegmentDataset struct {
	Group  segment.Group `json:"group"`
	Hourly []HourlyPoint `json:"hourly"`
	Daily  []DailyPoint  `json:"daily"`
	Totals Totals        `json:"totals"`
}

// At returns the bucket for (date, hour); missing buckets are zero-valued.
func (s *SegmentDataset) At(date string, hour int) HourlyPoint {
	i := sort.Search(len(s.Hourly), func(i int) bool {
		p := s.Hourly[i]
		return p.Date > date || (p.Date == date && p.Hour >= hour)
	})
	if i < len(s.Hourly) && s.Hourly[i].Date == date && s.Hourly[i].Hour == hour {
		return s.Hourly[i]
	}
	return HourlyPoint{Date: date, Hour: hour}
}

// Day returns the rollup for date; missing dates are zero-valued.
func (s *SegmentDataset) Day(date string) DailyPoint {
	i := sort.Search(len(s.Daily), func(i int) bool { return s.Daily[i].Date >= date })
	if i < len(s.Daily) && s.Daily[i].Date == date {
		return s.Daily[i]
	}
	return DailyPoint{Date: date}
}

// HourlySeries lays the metric out densely as len(dates)*24 values, date-major.
// Daily-only metrics yield zeros.
func (s *SegmentDataset) HourlySeries(dates []string, m Metric) []float64 {
	out := make([]float64, len(dates)*24)
	pos := dateIndex(dates)
	for _, p := range s.Hourly {
		i, ok := pos[p.Date]
		if !ok || p.Hour < 0 || p.Hour > 23 {
			continue
		}
		out[i*24+p.Hour] = p.value(m)
	}
	return out
}

// DailySeries lays the metric out densely, one value per date.
func (s *SegmentDataset) DailySeries(dates []string, m Metric) []float64 {
	out := make([]float64, len(dates))
	pos := dateIndex(dates)
	for _, p := range s.Daily {
		if i, ok := pos[p.Date]; ok {
			out[i] = p.value(m)
		}
	}
	return out
}

func dateIndex(dates []string) map[string]int {
	pos := make(map[string]int, len(dates))
	for i, d := range dates {
		pos[d] = i
	}
	return pos
}

// Segments are the four reported groups.
type Segments struct {
	All       SegmentDataset `json:"all"`
	General   SegmentDataset `json:"general"`
	Fever     SegmentDataset `json:"fever"`
	Endoscopy SegmentDataset `json:"endoscopy"`
}

// Diagnostics counts input that was tolerated rather than aggregated.
type Diagnostics struct {
	ReservationsSeen     int `json:"reservations_seen"`
	DroppedReservations  int `json:"dropped_reservations"`
	OutOfWindow          int `json:"out_of_window"`
	Unclassified         int `json:"unclassified"`
	UnresolvedIdentities int `json:"unresolved_identities"`
	KarteSeen            int `json:"karte_seen"`
	UnusableKarte        int `json:"unusable_karte"`
	DroppedListingDays   int `json:"dropped_listing_days"`
	UnclassifiedListing  int `json:"unclassified_listing"`
	DroppedSurveys       int `json:"dropped_surveys"`
	IdentitiesFirstSeen  int `json:"identities_first_seen"`
}

// Dataset is the result of one aggregation run. Dates is the contiguous calendar
// span all dense series are aligned to.
type Dataset struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	Dates       []string    `json:"dates"`
	Segments    Segments    `json:"segments"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Segment returns the dataset for a group, or nil for an unknown group.
func (d *Dataset) Segment(g segment.Group) *SegmentDataset {
	switch g {
	case segment.GroupAll:
		return &d.Segments.All
	case segment.GroupGeneral:
		return &d.Segments.General
	case segment.GroupFever:
		return &d.Segments.Fever
	case segment.GroupEndoscopy:
		return &d.Segments.Endoscopy
	}
	return nil
}

// HourlySeries is SegmentDataset.HourlySeries over the dataset's date span.
func (d *Dataset) HourlySeries(g segment.Group, m Metric) []float64 {
	s := d.Segment(g)
	if s == nil {
		return nil
	}
	return s.HourlySeries(d.Dates, m)
}

// DailySeries is SegmentDataset.DailySeries over the dataset's date span.
func (d *Dataset) DailySeries(g segment.Group, m Metric) []float64 {
	s := d.Segment(g)
	if s == nil {
		return nil
	}
	return s.DailySeries(d.Dates, m)
}
