package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clinicpulse-cli/internal/segment"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <label>...",
	Short: "Show which segment a department or ad category label falls into",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := currentConfig()
		if err != nil {
			return err
		}
		cl, err := segment.NewClassifier(c.CategorySegments)
		if err != nil {
			return fmt.Errorf("category_segments: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, label := range args {
			s := cl.Classify(label)
			g, ok := s.Group()
			if !ok {
				g = segment.GroupAll
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", label, s, g)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
