package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/clinicpulse-cli/internal/config"
	"github.com/KaramelBytes/clinicpulse-cli/internal/identity"
	"github.com/KaramelBytes/clinicpulse-cli/internal/ingest"
	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set ClinicPulse configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "workspaces_dir: %s\n", c.WorkspacesDir)
		fmt.Fprintf(out, "timezone: %s\n", c.Timezone)
		fmt.Fprintf(out, "hourly_max_lag: %d\n", c.HourlyMaxLag)
		fmt.Fprintf(out, "daily_max_lag: %d\n", c.DailyMaxLag)
		fmt.Fprintf(out, "identity_fields: %s\n", strings.Join(c.IdentityFields, ","))
		fmt.Fprintf(out, "encoding: %s\n", c.Encoding)
		fmt.Fprintf(out, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", c.LogFormat)
		if len(c.CategorySegments) > 0 {
			fmt.Fprintln(out, "category_segments:")
			labels := make([]string, 0, len(c.CategorySegments))
			for l := range c.CategorySegments {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			for _, l := range labels {
				fmt.Fprintf(out, "  %s: %s\n", l, c.CategorySegments[l])
			}
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set a config value and save to disk.
category_segments takes "<label>=<segment>" and adds one override; "<label>=" removes it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(c, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "workspaces_dir":
		c.WorkspacesDir = val
	case "timezone":
		if _, err := time.LoadLocation(val); err != nil {
			return fmt.Errorf("invalid timezone: %s", val)
		}
		c.Timezone = val
	case "hourly_max_lag", "daily_max_lag":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid non-negative int for %s: %v", key, val)
		}
		if key == "hourly_max_lag" {
			c.HourlyMaxLag = i
		} else {
			c.DailyMaxLag = i
		}
	case "identity_fields":
		fields := strings.Split(val, ",")
		if _, err := identity.NewBuilder(fields); err != nil {
			return err
		}
		c.IdentityFields = fields
	case "category_segments":
		label, name, ok := strings.Cut(val, "=")
		label = strings.TrimSpace(label)
		if !ok || label == "" {
			return fmt.Errorf("category_segments expects <label>=<segment>")
		}
		if c.CategorySegments == nil {
			c.CategorySegments = map[string]string{}
		}
		if strings.TrimSpace(name) == "" {
			delete(c.CategorySegments, label)
			return nil
		}
		s, err := segment.Parse(name)
		if err != nil {
			return err
		}
		c.CategorySegments[label] = s.String()
	case "encoding":
		enc, err := ingest.ParseEncoding(val)
		if err != nil {
			return err
		}
		c.Encoding = string(enc)
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug|info|warn|error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "console", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use console or json)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
