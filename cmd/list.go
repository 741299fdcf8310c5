package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clinicpulse-cli/internal/utils"
)

var (
	listWorkspaces bool
	listSources    bool
	listWsName     string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces or registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listWorkspaces == listSources { // either both true or both false
			return fmt.Errorf("specify exactly one of --workspaces or --sources")
		}
		out := cmd.OutOrStdout()
		if listWorkspaces {
			return listAllWorkspaces(out)
		}
		ws, err := loadWorkspace(listWsName)
		if err != nil {
			return err
		}
		srcs := ws.SortedSources()
		if len(srcs) == 0 {
			fmt.Fprintln(out, "(no sources)")
			return nil
		}
		for _, s := range srcs {
			fmt.Fprintf(out, "- %s: %s [%s, %d records]", s.ID, s.Name, s.Kind, s.Records)
			if s.Description != "" {
				fmt.Fprintf(out, " (%s)", s.Description)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func listAllWorkspaces(out io.Writer) error {
	root, err := workspacesDir()
	if err != nil {
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	found := false
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), utils.WorkspaceFile)); err == nil {
			fmt.Fprintf(out, "- %s\n", e.Name())
			found = true
		}
	}
	if !found {
		fmt.Fprintln(out, "(no workspaces)")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listWorkspaces, "workspaces", false, "list workspaces")
	listCmd.Flags().BoolVar(&listSources, "sources", false, "list sources in a workspace")
	listCmd.Flags().StringVarP(&listWsName, "workspace", "p", "", "workspace name for --sources")
}
