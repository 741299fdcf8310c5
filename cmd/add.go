package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/clinicpulse-cli/internal/ingest"
	"github.com/KaramelBytes/clinicpulse-cli/internal/records"
	"github.com/KaramelBytes/clinicpulse-cli/internal/utils"
	"github.com/KaramelBytes/clinicpulse-cli/internal/workspace"
)

var (
	addWorkspace  string
	addDesc       string
	addKind       string
	addSurveyType string
	addEncoding   string
	addSheetName  string
)

var addCmd = &cobra.Command{
	Use:   "add <file|glob>...",
	Short: "Register reservation, karte, listing or survey exports in a workspace",
	Long: `Parse one or more export files and store their records in the workspace.
The kind is inferred from the file name (予約, カルテ, 広告, アンケート) unless --kind is given.
Files whose content is already registered are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kind records.Kind
		if addKind != "" {
			k, err := records.ParseKind(addKind)
			if err != nil {
				return err
			}
			kind = k
		}
		enc, err := addEncodingOrConfig()
		if err != nil {
			return err
		}
		loc, err := location()
		if err != nil {
			return err
		}
		files, err := utils.ExpandGlobs(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no files match %v", args)
		}
		ws, err := loadWorkspace(addWorkspace)
		if err != nil {
			return err
		}

		loader := ingest.NewLoader(loc, logger)
		loader.Encoding = enc
		loader.SheetName = addSheetName
		loader.SurveyType = addSurveyType

		added := 0
		for _, f := range files {
			src, err := ws.AddSource(loader, f, kind, addDesc)
			if errors.Is(err, workspace.ErrDuplicateSource) {
				logger.Warn().Str("file", f).Err(err).Msg("duplicate source skipped")
				continue
			}
			if err != nil {
				// keep what was already added
				if added > 0 {
					if serr := ws.Save(); serr != nil {
						logger.Error().Err(serr).Msg("save workspace")
					}
				}
				return err
			}
			added++
			logger.Debug().Str("id", src.ID).Str("kind", string(src.Kind)).Int("records", src.Records).Msg("source added")
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s as %s (%d records, id %s)\n", filepath.Base(f), src.Kind, src.Records, src.ID)
		}
		if added == 0 {
			return nil
		}
		return ws.Save()
	},
}

func addEncodingOrConfig() (ingest.Encoding, error) {
	if addEncoding != "" {
		return ingest.ParseEncoding(addEncoding)
	}
	c, err := currentConfig()
	if err != nil {
		return "", err
	}
	return ingest.ParseEncoding(c.Encoding)
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addWorkspace, "workspace", "p", "", "workspace name")
	addCmd.Flags().StringVar(&addDesc, "desc", "", "source description")
	addCmd.Flags().StringVar(&addKind, "kind", "", "source kind: reservations|karte|listing|survey (inferred from the file name if omitted)")
	addCmd.Flags().StringVar(&addSurveyType, "survey-type", "", "survey file type when the file has no type column: 外来|内視鏡")
	addCmd.Flags().StringVar(&addEncoding, "encoding", "", "text encoding: auto|utf-8|shift_jis (overrides config)")
	addCmd.Flags().StringVar(&addSheetName, "sheet-name", "", "XLSX: sheet to read (default first sheet)")
}
