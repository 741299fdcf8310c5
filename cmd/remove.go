package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rmWorkspace string
)

var removeCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Remove a source and its records from a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := loadWorkspace(rmWorkspace)
		if err != nil {
			return err
		}
		src, err := ws.RemoveSource(args[0])
		if err != nil {
			return err
		}
		if err := ws.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s (%s, %d records)\n", src.Name, src.Kind, src.Records)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().StringVarP(&rmWorkspace, "workspace", "p", "", "workspace name")
}
