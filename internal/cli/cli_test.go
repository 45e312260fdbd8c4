package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/patentscan/internal/model"
	"github.com/ppiankov/patentscan/internal/sink"
	"github.com/ppiankov/patentscan/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// execute runs the command tree with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	cfgFile, verbose, logLevel, logJSON = "", false, "", false
	batchFrom, batchCount, batchWorkers, batchInterval = 0, 0, 0, 0
	batchProxiesFile, batchUserAgentsFile, batchOutput, batchFormat = "", "", "", ""
	batchFailedOut, batchMetricsAddr, batchNoCache, batchTimeout, batchSeed = "", "", false, 0, 0
	scanOutput, scanFormat, scanNoCache, scanTimeout = "", "", false, 0
	parseNumber, configInitPath = "", ""
	clearChanged(rootCmd)
}

func clearChanged(cmd *cobra.Command) {
	unset := func(f *pflag.Flag) { f.Changed = false }
	cmd.Flags().VisitAll(unset)
	cmd.PersistentFlags().VisitAll(unset)
	for _, c := range cmd.Commands() {
		clearChanged(c)
	}
}

func writeConfig(t *testing.T, serverURL string, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`source:
  url_template: "%s/doc?n={number}"
http:
  retries: 1
  retry_delay: 1ms
pacing:
  min_interval: 0s
cache:
  enabled: false
log:
  level: error
%s`, serverURL, extra)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func registerServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		number := r.URL.Query().Get("n")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch {
		case strings.HasSuffix(number, "0"):
			_, _ = fmt.Fprint(w, testutil.NotFoundPage)
		case strings.HasSuffix(number, "9"):
			_, _ = fmt.Fprint(w, "<html><body><p>maintenance</p></body></html>")
		default:
			_, _ = fmt.Fprint(w, testutil.PatentPage(number))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("expected version in output, got %q", out)
	}
}

func TestScan(t *testing.T) {
	server := registerServer(t)
	cfg := writeConfig(t, server.URL, "")

	out, err := execute(t, "--config", cfg, "scan", "2005333")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	var got struct {
		Number string              `json:"number"`
		Status model.Status        `json:"status"`
		Record *model.PatentRecord `json:"record"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if got.Status != model.StatusSuccess || got.Record.Number != "2005333" {
		t.Errorf("unexpected scan result: %+v", got)
	}
}

func TestScan_FailureReturnsError(t *testing.T) {
	server := registerServer(t)
	cfg := writeConfig(t, server.URL, "")

	if _, err := execute(t, "--config", cfg, "scan", "2005339"); err == nil {
		t.Error("expected error for structurally broken page")
	}
}

func TestBatch_Range(t *testing.T) {
	server := registerServer(t)
	dir := t.TempDir()
	output := filepath.Join(dir, "data.csv")
	failed := filepath.Join(dir, "failed.txt")
	cfg := writeConfig(t, server.URL, "")

	_, err := execute(t, "--config", cfg, "batch", "--from", "2005330", "--count", "10",
		"--workers", "3", "-o", output, "--failed-out", failed)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 11 {
		t.Fatalf("expected header + 10 rows, got %d", len(rows))
	}
	if !reflect.DeepEqual(rows[0], sink.Columns) {
		t.Errorf("unexpected header %v", rows[0])
	}

	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		seen[row[0]] = true
	}
	if len(seen) != 10 {
		t.Errorf("expected 10 distinct numbers, got %d", len(seen))
	}

	data, err := os.ReadFile(failed)
	if err != nil {
		t.Fatalf("expected failed numbers file: %v", err)
	}
	if strings.TrimSpace(string(data)) != "2005339" {
		t.Errorf("unexpected failed numbers %q", data)
	}
}

func TestBatch_FileJSONL(t *testing.T) {
	server := registerServer(t)
	dir := t.TempDir()
	numbers := filepath.Join(dir, "numbers.txt")
	output := filepath.Join(dir, "out.jsonl")
	_ = os.WriteFile(numbers, []byte("# sample\n2005331\n2005332\n2005331\n"), 0644)
	cfg := writeConfig(t, server.URL, "")

	if _, err := execute(t, "--config", cfg, "batch", numbers, "-o", output); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	data, _ := os.ReadFile(output)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 deduplicated lines, got %d", len(lines))
	}
}

func TestBatch_MissingNumbersFile(t *testing.T) {
	server := registerServer(t)
	cfg := writeConfig(t, server.URL, "")
	output := filepath.Join(t.TempDir(), "x.csv")
	if _, err := execute(t, "--config", cfg, "batch", filepath.Join(t.TempDir(), "nope.txt"), "-o", output); err == nil {
		t.Error("expected error for a missing numbers file")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("expected no output file, got stat err %v", err)
	}
}

func TestBatch_HelpMentionsDeduplication(t *testing.T) {
	if !strings.Contains(batchCmd.Long, "Repeated numbers are resolved once") {
		t.Error("batch help should explain that repeated numbers collapse")
	}
}

func TestBatch_NeedsNumbers(t *testing.T) {
	server := registerServer(t)
	cfg := writeConfig(t, server.URL, "")
	if _, err := execute(t, "--config", cfg, "batch", "-o", filepath.Join(t.TempDir(), "x.csv")); err == nil {
		t.Error("expected error without numbers")
	}
}

func TestBatch_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "http://unused", "concurrency:\n  workers: 0\n")
	if _, err := execute(t, "--config", cfg, "batch", "--from", "1", "--count", "1"); err == nil {
		t.Error("expected validation error")
	}
}

func TestParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2005333.html")
	if err := os.WriteFile(path, []byte(testutil.PatentPage("2 005 333")), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "parse", path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !strings.Contains(out, `"status": "success"`) || !strings.Contains(out, "СТОЛ РАЗДВИЖНОЙ") {
		t.Errorf("unexpected parse output: %s", out)
	}
}

func TestParse_NotFoundPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.html")
	_ = os.WriteFile(path, []byte(testutil.NotFoundPage), 0644)

	out, err := execute(t, "parse", path, "--number", "1")
	if err != nil {
		t.Fatalf("not found is not an error: %v", err)
	}
	if !strings.Contains(out, `"status": "not_found"`) {
		t.Errorf("unexpected parse output: %s", out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := execute(t, "config", "init", "--path", path); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	// The written file loads back to the defaults
	viper.Reset()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("written config unreadable: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pacing.MinInterval != 3*time.Second || cfg.Concurrency.Workers != 4 {
		t.Errorf("unexpected round trip: %+v", cfg)
	}

	if _, err := execute(t, "config", "init", "--path", path); err == nil {
		t.Error("expected refusal to overwrite existing config")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("PATENTSCAN_PACING_MIN_INTERVAL", "5s")
	t.Setenv("PATENTSCAN_CONCURRENCY_WORKERS", "9")

	viper.SetEnvPrefix("PATENTSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvKeys(reflect.TypeOf(model.Config{}), "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pacing.MinInterval != 5*time.Second {
		t.Errorf("expected 5s interval from env, got %v", cfg.Pacing.MinInterval)
	}
	if cfg.Concurrency.Workers != 9 {
		t.Errorf("expected 9 workers from env, got %d", cfg.Concurrency.Workers)
	}
	if cfg.HTTP.Retries != 3 {
		t.Errorf("expected untouched default retries, got %d", cfg.HTTP.Retries)
	}
}

func TestOutputFormat(t *testing.T) {
	if got := outputFormat("jsonl", "data.csv", "csv"); got != "jsonl" {
		t.Errorf("explicit format should win, got %s", got)
	}
	if got := outputFormat("", "data.xlsx", "csv"); got != "xlsx" {
		t.Errorf("extension should win over default, got %s", got)
	}
	if got := outputFormat("", "data", "csv"); got != "csv" {
		t.Errorf("expected default, got %s", got)
	}
}
