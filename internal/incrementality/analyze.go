package incrementality

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
	"github.com/KaramelBytes/clinicpulse-cli/internal/stats"
)

// AnalysisOptions selects the series pair and lag windows.
type AnalysisOptions struct {
	Source       Metric
	Target       Metric
	HourlyMaxLag int
	DailyMaxLag  int
}

// DefaultAnalysisOptions relates listing conversions to true first visits.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		Source:       MetricListingCV,
		Target:       MetricTrueFirst,
		HourlyMaxLag: 6,
		DailyMaxLag:  7,
	}
}

// SegmentAnalysis is the correlation and regression output for one group.
type SegmentAnalysis struct {
	Group            segment.Group               `json:"group"`
	Days             int                         `json:"days"`
	DailyCorrelation float64                     `json:"daily_correlation"`
	HourlyLags       []stats.LagCorrelationPoint `json:"hourly_lags,omitempty"`
	DailyLags        []stats.LagCorrelationPoint `json:"daily_lags,omitempty"`
	BestHourlyLag    *stats.LagCorrelationPoint  `json:"best_hourly_lag,omitempty"`
	BestDailyLag     *stats.LagCorrelationPoint  `json:"best_daily_lag,omitempty"`
	DistributedLag   *stats.DistributedLagResult `json:"distributed_lag,omitempty"`
	NoFitReason      string                      `json:"no_fit_reason,omitempty"`
}

// Analysis collects one SegmentAnalysis per group in segment.Groups order.
type Analysis struct {
	Source       Metric            `json:"source"`
	Target       Metric            `json:"target"`
	HourlyMaxLag int               `json:"hourly_max_lag"`
	DailyMaxLag  int               `json:"daily_max_lag"`
	Segments     []SegmentAnalysis `json:"segments"`
}

// Segment returns the analysis for g.
func (a *Analysis) Segment(g segment.Group) (SegmentAnalysis, bool) {
	for _, s := range a.Segments {
		if s.Group == g {
			return s, true
		}
	}
	return SegmentAnalysis{}, false
}

// Analyze runs the correlation sweeps and distributed-lag fit for every group.
// Groups are independent and run concurrently; the only error is ctx cancellation.
func Analyze(ctx context.Context, ds *Dataset, opt AnalysisOptions) (*Analysis, error) {
	if opt.Source == "" {
		opt.Source = MetricListingCV
	}
	if opt.Target == "" {
		opt.Target = MetricTrueFirst
	}
	out := &Analysis{
		Source:       opt.Source,
		Target:       opt.Target,
		HourlyMaxLag: opt.HourlyMaxLag,
		DailyMaxLag:  opt.DailyMaxLag,
		Segments:     make([]SegmentAnalysis, len(segment.Groups)),
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, grp := range segment.Groups {
		i, grp := i, grp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out.Segments[i] = analyzeGroup(ds, grp, opt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func analyzeGroup(ds *Dataset, g segment.Group, opt AnalysisOptions) SegmentAnalysis {
	res := SegmentAnalysis{Group: g, Days: len(ds.Dates)}

	src := ds.DailySeries(g, opt.Source)
	tgt := ds.DailySeries(g, opt.Target)
	res.DailyCorrelation = stats.Pearson(src, tgt)
	res.DailyLags = stats.CrossCorrelate(src, tgt, opt.DailyMaxLag)
	if best, ok := stats.BestLag(res.DailyLags); ok {
		res.BestDailyLag = &best
	}

	if opt.Source.Hourly() && opt.Target.Hourly() {
		hsrc := ds.HourlySeries(g, opt.Source)
		htgt := ds.HourlySeries(g, opt.Target)
		res.HourlyLags = stats.CrossCorrelate(hsrc, htgt, opt.HourlyMaxLag)
		if best, ok := stats.BestLag(res.HourlyLags); ok {
			res.BestHourlyLag = &best
		}
	}

	fit, err := stats.DistributedLag(src, tgt, opt.DailyMaxLag)
	switch {
	case err == nil:
		res.DistributedLag = &fit
	case errors.Is(err, stats.ErrInsufficientRows):
		res.NoFitReason = "not enough days for the lag window"
	case errors.Is(err, stats.ErrSingular):
		res.NoFitReason = "singular system (constant or collinear source)"
	default:
		res.NoFitReason = err.Error()
	}
	return res
}
