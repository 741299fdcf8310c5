package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/clinicpulse-cli/internal/config"
)

var (
	// Global flags
	cfgFile      string
	debug        bool
	flagTimezone string

	// Loaded configuration
	cfg *cfgpkg.Global
	// Process logger, rebuilt by loadConfig
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

var rootCmd = &cobra.Command{
	Use:   "clinicpulse",
	Short: "ClinicPulse CLI: measure how ad activity turns into true first visits",
	Long: `ClinicPulse ingests clinic reservation, medical record, ad conversion and survey exports,
aggregates them per clinical segment by hour and day, and relates ad activity to true first visits
through lagged correlation and distributed-lag regression.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.clinicpulse/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagTimezone, "timezone", "", "IANA time zone of the clinic (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = &cfgpkg.Global{}
	}
	cfg = c
	if rootCmd.PersistentFlags().Changed("timezone") {
		cfg.Timezone = flagTimezone
	}
	logger = newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel, debug)
}

// newLogger builds the process logger: console output unless format is json,
// level from the config unless --debug is set.
func newLogger(w io.Writer, format, level string, debug bool) zerolog.Logger {
	out := w
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// currentConfig returns the loaded configuration, loading it on demand for tests
// that call commands without Execute.
func currentConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func location() (*time.Location, error) {
	c, err := currentConfig()
	if err != nil {
		return nil, err
	}
	return c.Location()
}
