// Package report renders aggregation and analysis results for people and tools.
package report

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/clinicpulse-cli/internal/incrementality"
	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
	"github.com/KaramelBytes/clinicpulse-cli/internal/stats"
)

// topLags is how many lag points per sweep the Markdown report lists.
const topLags = 5

// Markdown renders a compact report. an may be nil to print only the dataset.
func Markdown(ds *incrementality.Dataset, an *incrementality.Analysis) string {
	var b strings.Builder
	writeSummary(&b, ds)
	writeTotals(&b, ds)
	writeDaily(&b, ds)
	if an != nil {
		writeLags(&b, an)
		writeDistributedLag(&b, an)
	}
	writeNotes(&b, ds)
	return b.String()
}

func writeSummary(b *strings.Builder, ds *incrementality.Dataset) {
	b.WriteString("[DATASET SUMMARY]\n")
	if len(ds.Dates) == 0 {
		b.WriteString("Window: (no data)\n\n")
		return
	}
	fmt.Fprintf(b, "Window: %s .. %s (%d days)\n", ds.From, ds.To, len(ds.Dates))
	all := ds.Segments.All.Totals
	fmt.Fprintf(b, "Reservations: %d\n", all.Reservations)
	fmt.Fprintf(b, "True first visits: %d\n", all.TrueFirst)
	fmt.Fprintf(b, "Listing conversions: %.4g\n", all.ListingCV)
	fmt.Fprintf(b, "Survey responses: %.4g (search %.4g)\n\n", all.SurveyResponses, all.SurveySearch)
}

func writeTotals(b *strings.Builder, ds *incrementality.Dataset) {
	b.WriteString("[SEGMENT TOTALS]\n")
	b.WriteString("| group | reservations | true first | first share | tagged 初診 | unresolved | listing CV | survey | survey search |\n")
	b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- | --- |\n")
	for _, g := range segment.Groups {
		t := ds.Segment(g).Totals
		fmt.Fprintf(b, "| %s | %d | %d | %s | %d | %d | %.4g | %.4g | %.4g |\n",
			g, t.Reservations, t.TrueFirst, share(t.TrueFirst, t.Reservations),
			t.TaggedFirst, t.Unresolved, t.ListingCV, t.SurveyResponses, t.SurveySearch)
	}
	b.WriteString("\n")
}

func share(n, of int) string {
	if of == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(of))
}

func writeDaily(b *strings.Builder, ds *incrementality.Dataset) {
	b.WriteString("[DAILY SERIES]\n")
	wrote := false
	for _, g := range segment.Groups {
		s := ds.Segment(g)
		if len(s.Daily) == 0 {
			continue
		}
		wrote = true
		fmt.Fprintf(b, "- %s\n", g)
		b.WriteString("| date | reservations | true first | listing CV | survey | survey search |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
		for _, d := range s.Daily {
			fmt.Fprintf(b, "| %s | %d | %d | %.4g | %.4g | %.4g |\n",
				d.Date, d.Reservations, d.TrueFirst, d.ListingCV, d.SurveyResponses, d.SurveySearch)
		}
	}
	if !wrote {
		b.WriteString("(no activity)\n")
	}
	b.WriteString("\n")
}

func writeLags(b *strings.Builder, an *incrementality.Analysis) {
	b.WriteString("[LAG CORRELATION]\n")
	fmt.Fprintf(b, "Source: %s, target: %s\n", an.Source, an.Target)
	for _, s := range an.Segments {
		fmt.Fprintf(b, "- %s: daily r=%.3f\n", s.Group, s.DailyCorrelation)
		writeLagList(b, "hourly", s.HourlyLags)
		writeLagList(b, "daily", s.DailyLags)
	}
	b.WriteString("\n")
}

func writeLagList(b *strings.Builder, label string, pts []stats.LagCorrelationPoint) {
	if len(pts) == 0 {
		return
	}
	sorted := stats.SortByStrength(pts)
	if len(sorted) > topLags {
		sorted = sorted[:topLags]
	}
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = fmt.Sprintf("lag %+d r=%.3f (n=%d)", p.Lag, p.Correlation, p.PairedSamples)
	}
	fmt.Fprintf(b, "  • %s: %s\n", label, strings.Join(parts, ", "))
}

func writeDistributedLag(b *strings.Builder, an *incrementality.Analysis) {
	b.WriteString("[DISTRIBUTED LAG]\n")
	fmt.Fprintf(b, "Daily %s ~ %s over lags 0..%d\n", an.Target, an.Source, an.DailyMaxLag)
	for _, s := range an.Segments {
		fit := s.DistributedLag
		if fit == nil {
			fmt.Fprintf(b, "- %s: no fit (%s)\n", s.Group, s.NoFitReason)
			continue
		}
		weights := make([]string, 0, fit.MaxLag+1)
		for l := 0; l <= fit.MaxLag; l++ {
			weights = append(weights, fmt.Sprintf("β%d=%.4g", l, fit.LagWeight(l)))
		}
		fmt.Fprintf(b, "- %s: total effect %.4g, R²=%.3f, n=%d, intercept %.4g\n",
			s.Group, fit.TotalEffect, fit.RSquared, fit.SampleSize, fit.Intercept())
		fmt.Fprintf(b, "  • %s\n", strings.Join(weights, ", "))
	}
	b.WriteString("\n")
}

func writeNotes(b *strings.Builder, ds *incrementality.Dataset) {
	d := ds.Diagnostics
	notes := []struct {
		n    int
		text string
	}{
		{d.DroppedReservations, "reservations dropped (no usable date or hour)"},
		{d.OutOfWindow, "reservations outside the window"},
		{d.Unclassified, "reservations with an unclassified department (counted in all only)"},
		{d.UnresolvedIdentities, "reservations without a resolvable identity"},
		{d.UnusableKarte, "karte rows without identity or date"},
		{d.DroppedListingDays, "listing days with an unreadable date"},
		{d.UnclassifiedListing, "listing categories with no segment (counted in all only)"},
		{d.DroppedSurveys, "survey rows with an unreadable date"},
	}
	var lines []string
	for _, n := range notes {
		if n.n > 0 {
			lines = append(lines, fmt.Sprintf("- %d %s", n.n, n.text))
		}
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("[NOTES]\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
}
