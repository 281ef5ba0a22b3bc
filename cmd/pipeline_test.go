package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/witanlabs/rowsmith/config"
	"github.com/witanlabs/rowsmith/internal/table/tabletest"
)

// newFakeOllama upper-cases the text after the instruction, or answers
// with nothing when empty is set.
func newFakeOllama(t *testing.T, empty bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			var req struct {
				Prompt string `json:"prompt"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			parts := strings.SplitN(req.Prompt, "\n\n", 2)
			reply := ""
			if !empty && len(parts) == 2 {
				reply = strings.ToUpper(parts[1])
			}
			json.NewEncoder(w).Encode(map[string]any{"response": reply, "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func localConfig(url string) config.Config {
	cfg := config.Default()
	cfg.Backend = config.BackendLocal
	cfg.Local.BaseURL = url
	cfg.Cache = false
	return cfg
}

func TestPipeline_ExtractRewordMerge(t *testing.T) {
	saveGlobals(t)
	dir := t.TempDir()
	src := tabletest.WriteXLSX(t, dir, "description.xlsx", [][]string{
		{"Description", "SKU"},
		{"<p>Hello</p>", "s1"},
		{"No markup", "s2"},
		{"<p>a</p><p>b</p>", "s3"},
	})
	jsonOutput = false

	extractOutDir = filepath.Join(dir, "extracted_descriptions")
	if err := runExtract(&cobra.Command{}, []string{src}); err != nil {
		t.Fatalf("extract: %v", err)
	}

	appConfig = localConfig(newFakeOllama(t, false).URL)
	rewordOutDir = filepath.Join(dir, "reworded_descriptions")
	rewordNoCache = false
	if err := runReword(&cobra.Command{}, []string{extractOutDir}); err != nil {
		t.Fatalf("reword: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(rewordOutDir, "row_4_col_Description.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "<p>A</p><p>B</p>" {
		t.Fatalf("row 4 reworded to %q", got)
	}

	mergeOutPath = ""
	if err := runMerge(&cobra.Command{}, []string{src, rewordOutDir}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	rows := tabletest.ReadRows(t, filepath.Join(dir, "description_new.xlsx"))
	want := [][]string{
		{"Description", "SKU"},
		{"<p>HELLO</p>", "s1"},
		{"No markup", "s2"},
		{"<p>A</p><p>B</p>", "s3"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("merged rows = %q, want %q", rows, want)
	}
}

func TestRunReword_FailedUnitsExitCode2(t *testing.T) {
	saveGlobals(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "row_2_col_A.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}

	appConfig = localConfig(newFakeOllama(t, true).URL)
	appConfig.Mode = config.ModeWhole
	rewordOutDir = filepath.Join(dir, "out")
	jsonOutput = true

	err := runReword(&cobra.Command{}, []string{in})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(rewordOutDir, "row_2_col_A.txt")); !os.IsNotExist(err) {
		t.Fatalf("failed unit must not be written, stat err = %v", err)
	}
}

func TestRunReword_NoneBackendRefuses(t *testing.T) {
	saveGlobals(t)
	appConfig = config.Default()
	appConfig.Backend = config.BackendNone
	rewordOutDir = filepath.Join(t.TempDir(), "out")

	err := runReword(&cobra.Command{}, []string{t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "by hand") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestRunReword_FlagsOverrideConfig(t *testing.T) {
	saveGlobals(t)
	appConfig = config.Default()

	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&rewordMode, "mode", "", "")
	cmd.Flags().IntVar(&rewordConcurrency, "concurrency", 0, "")
	if err := cmd.Flags().Parse([]string{"--mode", "whole", "--concurrency", "4"}); err != nil {
		t.Fatal(err)
	}
	rewordNoCache = true

	cfg, err := rewordConfig(cmd, appConfig)
	if err != nil {
		t.Fatalf("rewordConfig: %v", err)
	}
	if cfg.Mode != config.ModeWhole || cfg.Concurrency != 4 || cfg.Cache {
		t.Fatalf("flags not applied: %+v", cfg)
	}

	if err := cmd.Flags().Set("concurrency", "0"); err != nil {
		t.Fatal(err)
	}
	if _, err := rewordConfig(cmd, appConfig); err == nil {
		t.Fatal("expected validation error for zero concurrency")
	}
}

func TestRunConfigInitAndShow(t *testing.T) {
	saveGlobals(t)
	configPath = filepath.Join(t.TempDir(), "rowsmith", "config.json")
	jsonOutput = true
	configInitForce = false

	if err := runConfigInit(&cobra.Command{}, nil); err != nil {
		t.Fatalf("init: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Fatalf("written config differs from defaults: %+v", cfg)
	}

	if err := runConfigInit(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	configInitForce = true
	if err := runConfigInit(&cobra.Command{}, nil); err != nil {
		t.Fatalf("forced init: %v", err)
	}

	appConfig = cfg
	appConfig.Remote.APIKey = "sk-secret-value-1234"
	if err := runConfigShow(&cobra.Command{}, nil); err != nil {
		t.Fatalf("show: %v", err)
	}
	if err := runConfigPath(&cobra.Command{}, nil); err != nil {
		t.Fatalf("path: %v", err)
	}
}
