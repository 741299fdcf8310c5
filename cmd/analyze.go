package cmd

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clinicpulse-cli/internal/identity"
	"github.com/KaramelBytes/clinicpulse-cli/internal/incrementality"
	"github.com/KaramelBytes/clinicpulse-cli/internal/report"
	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
	"github.com/KaramelBytes/clinicpulse-cli/internal/utils"
)

var (
	anaWorkspace    string
	anaOutputPath   string
	anaFrom         string
	anaTo           string
	anaHourlyMaxLag int
	anaDailyMaxLag  int
	anaSource       string
	anaTarget       string
	anaFormat       string
	anaDatasetOnly  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Aggregate a workspace per segment and relate ad activity to true first visits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(anaFormat)
		if err != nil {
			return err
		}
		opt, err := aggregationOptions(c.IdentityFields, c.CategorySegments)
		if err != nil {
			return err
		}
		aopt := incrementality.AnalysisOptions{HourlyMaxLag: c.HourlyMaxLag, DailyMaxLag: c.DailyMaxLag}
		if cmd.Flags().Changed("hourly-max-lag") {
			aopt.HourlyMaxLag = anaHourlyMaxLag
		}
		if cmd.Flags().Changed("daily-max-lag") {
			aopt.DailyMaxLag = anaDailyMaxLag
		}
		if aopt.HourlyMaxLag < 0 || aopt.DailyMaxLag < 0 {
			return fmt.Errorf("lag windows must be non-negative")
		}
		if aopt.Source, err = incrementality.ParseMetric(anaSource); err != nil {
			return fmt.Errorf("--source: %w", err)
		}
		if aopt.Target, err = incrementality.ParseMetric(anaTarget); err != nil {
			return fmt.Errorf("--target: %w", err)
		}

		ws, err := loadWorkspace(anaWorkspace)
		if err != nil {
			return err
		}
		set, err := ws.Records()
		if err != nil {
			return err
		}
		start := time.Now()
		ds := incrementality.Build(incrementality.InputFromSet(set), opt)
		logDiagnostics(ds.Diagnostics)

		doc := report.Document{Dataset: ds}
		if !anaDatasetOnly {
			an, err := incrementality.Analyze(cmd.Context(), ds, aopt)
			if err != nil {
				return err
			}
			doc.Analysis = an
			for _, s := range an.Segments {
				if s.NoFitReason != "" {
					logger.Debug().Str("group", string(s.Group)).Str("reason", s.NoFitReason).Msg("no distributed-lag fit")
				}
			}
		}
		logger.Debug().Dur("elapsed", time.Since(start)).Int("days", len(ds.Dates)).Msg("analysis finished")

		var buf bytes.Buffer
		if err := report.Write(&buf, format, doc); err != nil {
			return err
		}
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, buf.Bytes()); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	},
}

// aggregationOptions assembles the window, zone, identity and classifier settings.
func aggregationOptions(fields []string, overrides map[string]string) (incrementality.Options, error) {
	var opt incrementality.Options
	for _, d := range []struct{ flag, v string }{{"--from", anaFrom}, {"--to", anaTo}} {
		if d.v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d.v); err != nil {
			return opt, fmt.Errorf("%s must be YYYY-MM-DD: %q", d.flag, d.v)
		}
	}
	if anaFrom != "" && anaTo != "" && anaFrom > anaTo {
		return opt, fmt.Errorf("--from %s is after --to %s", anaFrom, anaTo)
	}
	loc, err := location()
	if err != nil {
		return opt, err
	}
	b, err := identity.NewBuilder(fields)
	if err != nil {
		return opt, fmt.Errorf("identity_fields: %w", err)
	}
	cl, err := segment.NewClassifier(overrides)
	if err != nil {
		return opt, fmt.Errorf("category_segments: %w", err)
	}
	opt.From, opt.To = anaFrom, anaTo
	opt.Location = loc
	opt.Identity = b
	opt.Classifier = cl
	return opt, nil
}

func logDiagnostics(d incrementality.Diagnostics) {
	ev := logger.Debug()
	if d.DroppedReservations+d.Unclassified+d.UnresolvedIdentities+d.UnusableKarte+
		d.DroppedListingDays+d.DroppedSurveys > 0 {
		ev = logger.Info()
	}
	ev.Int("reservations", d.ReservationsSeen).
		Int("dropped", d.DroppedReservations).
		Int("out_of_window", d.OutOfWindow).
		Int("unclassified", d.Unclassified).
		Int("unresolved", d.UnresolvedIdentities).
		Int("karte", d.KarteSeen).
		Int("unusable_karte", d.UnusableKarte).
		Int("dropped_listing_days", d.DroppedListingDays).
		Int("unclassified_listing", d.UnclassifiedListing).
		Int("dropped_surveys", d.DroppedSurveys).
		Int("identities", d.IdentitiesFirstSeen).
		Msg("aggregation diagnostics")
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaWorkspace, "workspace", "p", "", "workspace name")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report")
	analyzeCmd.Flags().StringVar(&anaFrom, "from", "", "first date of the window (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&anaTo, "to", "", "last date of the window (YYYY-MM-DD)")
	analyzeCmd.Flags().IntVar(&anaHourlyMaxLag, "hourly-max-lag", 6, "largest hourly lag to sweep (overrides config)")
	analyzeCmd.Flags().IntVar(&anaDailyMaxLag, "daily-max-lag", 7, "largest daily lag to sweep and regress on (overrides config)")
	analyzeCmd.Flags().StringVar(&anaSource, "source", string(incrementality.MetricListingCV), "source metric: reservations|true_first|listing_cv|survey_responses|survey_search")
	analyzeCmd.Flags().StringVar(&anaTarget, "target", string(incrementality.MetricTrueFirst), "target metric")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "md", "output format: md|json|yaml")
	analyzeCmd.Flags().BoolVar(&anaDatasetOnly, "dataset-only", false, "skip correlation and regression; report the aggregated dataset only")
}
