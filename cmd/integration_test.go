package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd is a helper to execute the root command with args and capture stdout.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(args...)
	require.NoError(t, err, "command %v", args)
	return out
}

func execCmd(args ...string) (string, error) {
	// Reset sticky flags that may persist Changed state across invocations
	for _, c := range []*pflag.FlagSet{addCmd.Flags(), analyzeCmd.Flags(), listCmd.Flags(), initCmd.Flags(), removeCmd.Flags()} {
		c.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// isolate points HOME at a temp dir so config and workspaces stay inside the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CLINICPULSE_TIMEZONE", "Asia/Tokyo")
	cfg = nil
	logger = zerolog.Nop()
	t.Cleanup(func() { cfg = nil })
	return home
}

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644), "write %s", name)
	return p
}

// fixtures writes 14 days of reservations and ad conversions where fever
// conversions at hour 9 precede a new fever patient at hour 10.
func fixtures(t *testing.T, dir string) {
	t.Helper()
	var rsv, ads strings.Builder
	rsv.WriteString("予約日,予約時間,診療科,患者名,初診/再診\n")
	ads.WriteString("日付,カテゴリ")
	for h := 0; h < 24; h++ {
		fmt.Fprintf(&ads, ",%d時", h)
	}
	ads.WriteString("\n")
	for d := 1; d <= 14; d++ {
		date := fmt.Sprintf("2024-05-%02d", d)
		fmt.Fprintf(&rsv, "%s,10:00,発熱外来,患者%d,初診\n", date, d)
		fmt.Fprintf(&rsv, "%s,14:00,内科,常連 様,再診\n", date)
		cv := make([]string, 24)
		for h := range cv {
			cv[h] = "0"
		}
		cv[9] = fmt.Sprint(1 + d%3)
		fmt.Fprintf(&ads, "%s,発熱,%s\n", date, strings.Join(cv, ","))
	}
	writeFixture(t, dir, "予約一覧.csv", rsv.String())
	writeFixture(t, dir, "広告_発熱.csv", ads.String())
	writeFixture(t, dir, "カルテ.csv", "患者名,受診日\n常連,2024-01-10\n")
}

func TestCLI_Init_Add_Analyze(t *testing.T) {
	home := isolate(t)
	data := filepath.Join(home, "exports")
	require.NoError(t, os.MkdirAll(data, 0o755))
	fixtures(t, data)

	runCmd(t, "init", "clinic", "-d", "integration test")
	out := runCmd(t, "add", "-p", "clinic", filepath.Join(data, "*.csv"))
	require.Equal(t, 3, strings.Count(out, "✓ Added"), out)
	// same content again is skipped, not an error
	out = runCmd(t, "add", "-p", "clinic", filepath.Join(data, "カルテ.csv"))
	assert.NotContains(t, out, "✓ Added", "duplicate should be skipped")

	out = runCmd(t, "list", "--sources", "-p", "clinic")
	for _, want := range []string{"[reservations, 28 records]", "[listing, 14 records]", "[karte, 1 records]"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, runCmd(t, "list", "--workspaces"), "- clinic")

	md := runCmd(t, "analyze", "-p", "clinic", "--daily-max-lag", "2")
	for _, want := range []string{"[SEGMENT TOTALS]", "| fever | 14 | 14 |", "| general | 14 | 0 |", "[DISTRIBUTED LAG]"} {
		assert.Contains(t, md, want)
	}

	js := runCmd(t, "analyze", "-p", "clinic", "--format", "json", "--from", "2024-05-03", "--to", "2024-05-12")
	var doc struct {
		Dataset struct {
			From  string   `json:"from"`
			Dates []string `json:"dates"`
		} `json:"dataset"`
		Analysis struct {
			Segments []struct {
				Group         string `json:"group"`
				BestHourlyLag *struct {
					Lag int `json:"lag"`
				} `json:"best_hourly_lag"`
			} `json:"segments"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal([]byte(js), &doc), js)
	assert.Equal(t, "2024-05-03", doc.Dataset.From)
	assert.Len(t, doc.Dataset.Dates, 10)
	require.Len(t, doc.Analysis.Segments, 4)
	assert.Equal(t, "fever", doc.Analysis.Segments[2].Group)
	best := doc.Analysis.Segments[2].BestHourlyLag
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Lag)

	outFile := filepath.Join(home, "report.yaml")
	runCmd(t, "analyze", "-p", "clinic", "--format", "yaml", "-o", outFile, "--dataset-only")
	y, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(y), "true_first:")
	assert.NotContains(t, string(y), "analysis:")
}

func TestCLI_RemoveSource(t *testing.T) {
	home := isolate(t)
	p := writeFixture(t, home, "予約.csv", "予約日,予約時間,診療科,患者名\n2024-05-01,9,内科,山田\n")
	runCmd(t, "init", "rm")
	runCmd(t, "add", "-p", "rm", p)
	ws, err := loadWorkspace("rm")
	require.NoError(t, err)
	srcs := ws.SortedSources()
	require.Len(t, srcs, 1)
	runCmd(t, "remove", "-p", "rm", srcs[0].ID)
	assert.Contains(t, runCmd(t, "list", "--sources", "-p", "rm"), "(no sources)")
	_, err = execCmd("remove", "-p", "rm", srcs[0].ID)
	assert.Error(t, err, "removing an unknown source")
}

func TestCLI_InitRefusesExisting(t *testing.T) {
	isolate(t)
	runCmd(t, "init", "dup")
	_, err := execCmd("init", "dup")
	assert.Error(t, err)
}

func TestCLI_AnalyzeFlagValidation(t *testing.T) {
	isolate(t)
	runCmd(t, "init", "v")
	for _, args := range [][]string{
		{"analyze", "-p", "v", "--from", "05/01/2024"},
		{"analyze", "-p", "v", "--from", "2024-05-10", "--to", "2024-05-01"},
		{"analyze", "-p", "v", "--source", "clicks"},
		{"analyze", "-p", "v", "--format", "csv"},
		{"analyze", "-p", "missing"},
	} {
		_, err := execCmd(args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestCLI_ClassifyAndConfig(t *testing.T) {
	isolate(t)
	out := runCmd(t, "classify", "発熱外来", "大腸カメラ", "皮膚科")
	for _, want := range []string{"発熱外来\tfever\tfever", "大腸カメラ\tendoscopy-colon\tendoscopy", "皮膚科\tnone\tall"} {
		assert.Contains(t, out, want)
	}

	runCmd(t, "config", "set", "category_segments", "皮膚科=general")
	runCmd(t, "config", "set", "daily_max_lag", "3")
	_, err := execCmd("config", "set", "daily_max_lag", "many")
	assert.Error(t, err, "non-numeric lag")
	_, err = execCmd("config", "set", "nope", "1")
	assert.Error(t, err, "unknown key")

	cfg = nil
	out = runCmd(t, "config", "show")
	assert.Contains(t, out, "daily_max_lag: 3")
	assert.Contains(t, out, "皮膚科: general")
	assert.Contains(t, runCmd(t, "classify", "皮膚科"), "皮膚科\tgeneral\tgeneral")
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "json", "warn", false)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	buf.Reset()
	dl := newLogger(&buf, "json", "error", true)
	dl.Debug().Msg("dbg")
	assert.Contains(t, buf.String(), "dbg", "--debug forces debug level")
}
