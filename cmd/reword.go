package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/witanlabs/rowsmith/client"
	"github.com/witanlabs/rowsmith/config"
	"github.com/witanlabs/rowsmith/internal/faults"
	"github.com/witanlabs/rowsmith/internal/reword"
)

var (
	rewordOutDir      string
	rewordMode        string
	rewordBackend     string
	rewordTag         string
	rewordConcurrency int
	rewordNoCache     bool
)

var rewordCmd = &cobra.Command{
	Use:   "reword <input-dir>",
	Short: "Rewrite unit files through a local or remote model",
	Long: `Reword every row_<id>_col_<label>.txt file in <input-dir> and write the
result under the same name in the output directory.

Modes:
  spans  Only the text inside <p>...</p> (see --tag) is rewritten. Markup and
         text outside the spans stay byte-identical. A span the backend cannot
         rewrite keeps its original text.
  whole  The whole file is sent to the backend. Files the backend cannot
         rewrite are reported as failed and not written.

Backends:
  auto    Local model server if reachable, else the remote API if a key is set.
  local   Ollama-compatible server (local.base_url).
  remote  OpenAI-compatible API (remote.base_url, OPENAI_API_KEY).
  stream  Websocket streaming generation server (stream.url).
  none    Refuse to run; edit the files by hand instead.

Returns exit code 2 when any unit failed.

Examples:
  rowsmith reword extracted_descriptions
  rowsmith reword units -o reworded --backend remote --concurrency 4
  rowsmith reword units --mode whole --no-cache`,
	Args: cobra.ExactArgs(1),
	RunE: runReword,
}

func init() {
	rewordCmd.Flags().StringVarP(&rewordOutDir, "output", "o", "reworded_descriptions", "Directory to write reworded unit files into")
	rewordCmd.Flags().StringVar(&rewordMode, "mode", "", "spans or whole (default from config: spans)")
	rewordCmd.Flags().StringVar(&rewordBackend, "backend", "", "auto, local, remote, stream or none (default from config: auto)")
	rewordCmd.Flags().StringVar(&rewordTag, "tag", "", "Element whose contents are rewritten in spans mode (default from config: p)")
	rewordCmd.Flags().IntVar(&rewordConcurrency, "concurrency", 0, "Units processed in parallel (default from config: 1)")
	rewordCmd.Flags().BoolVar(&rewordNoCache, "no-cache", false, "Do not read or write the response cache")
	rootCmd.AddCommand(rewordCmd)
}

type rewordOutput struct {
	Backend   string `json:"backend"`
	Mode      string `json:"mode"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Output    string `json:"output"`
}

func runReword(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := commandContext(cmd)

	cfg, err := rewordConfig(cmd, appConfig)
	if err != nil {
		return err
	}
	mode, err := reword.ParseMode(cfg.Mode)
	if err != nil {
		return faults.InvalidConfig(err)
	}

	resolved, err := client.Resolve(ctx, cfg, logger("backend"))
	if err != nil {
		return err
	}
	defer resolved.Close()
	if resolved.Kind == client.KindNone {
		return fmt.Errorf("backend is %q: edit the files in %s by hand, then run 'rowsmith merge'", client.KindNone, args[0])
	}

	res, runErr := reword.ProcessAll(ctx, args[0], rewordOutDir, resolved.Backend, reword.Options{
		Mode:        mode,
		Tag:         cfg.Tag,
		Concurrency: cfg.Concurrency,
		Logger:      logger("reword"),
	})
	if runErr != nil && res == (reword.Result{}) {
		return runErr
	}

	if jsonOutput {
		if err := jsonPrint(rewordOutput{
			Backend:   string(resolved.Kind),
			Mode:      string(mode),
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
			Output:    rewordOutDir,
		}); err != nil {
			return err
		}
	} else {
		fmt.Printf("Reworded %d unit(s) into %s using the %s backend", res.Succeeded, rewordOutDir, resolved.Kind)
		if res.Failed > 0 {
			fmt.Printf("; %d failed", res.Failed)
		}
		fmt.Println()
	}

	if runErr != nil {
		return runErr
	}
	if res.Failed > 0 {
		return &ExitError{Code: 2}
	}
	return nil
}

// rewordConfig applies the command's flags over cfg and validates the result.
func rewordConfig(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = rewordMode
	}
	if flags.Changed("backend") {
		cfg.Backend = rewordBackend
	}
	if flags.Changed("tag") {
		cfg.Tag = rewordTag
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = rewordConcurrency
	}
	if rewordNoCache {
		cfg.Cache = false
	}
	if err := cfg.Validate(); err != nil {
		return cfg, faults.InvalidConfig(err)
	}
	return cfg, nil
}
