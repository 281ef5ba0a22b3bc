package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/witanlabs/rowsmith/client"
	"github.com/witanlabs/rowsmith/config"
	"github.com/witanlabs/rowsmith/internal/faults"
	"github.com/witanlabs/rowsmith/internal/logging"
	"github.com/witanlabs/rowsmith/internal/logging/gologger"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	configPath string
	logLevel   string
	logFormat  string
	jsonOutput bool
)

// Resolved once per invocation by loadSettings.
var (
	appConfig = config.Default()
	logs      *gologger.Provider
)

var rootCmd = &cobra.Command{
	Use:   "rowsmith",
	Short: "Move spreadsheet text out, reword it, merge it back",
	Long: `Round-trip the first column of a spreadsheet through plain text files.

Workflow:
  extract  Write one row_<id>_col_<label>.txt file per data row.
  reword   Rewrite those files through a local or remote model.
  merge    Write edited files back into a copy of the spreadsheet.

The files can also be edited by hand between extract and merge.

Configuration is read from the config file (see 'rowsmith config path'),
then .env and ROWSMITH_* environment variables, then flags. Any flag not
given on the command line may be supplied as ROWSMITH_<FLAG_NAME>.`,
	Version:           Version,
	SilenceErrors:     true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return loadSettings(cmd, true) },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: $ROWSMITH_CONFIG_DIR, $XDG_CONFIG_HOME/rowsmith or ~/.config/rowsmith)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console, json, pretty")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-formatted summaries")
}

// loadSettings builds the effective configuration and the logger. validate
// is false for the config commands so a broken file can still be inspected
// or replaced.
func loadSettings(cmd *cobra.Command, validate bool) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if err := applyFlagEnv(cmd.Flags(), os.Getenv); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		return faults.InvalidConfig(err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return faults.InvalidConfig(err)
		}
	}

	provider, err := gologger.NewProvider(gologger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return faults.InvalidConfig(err)
	}
	appConfig = cfg
	logs = provider
	client.UserAgent = "rowsmith/" + Version
	return nil
}

// applyFlagEnv fills every flag not set on the command line from
// ROWSMITH_<NAME>, dashes mapped to underscores.
func applyFlagEnv(fs *pflag.FlagSet, getenv func(string) string) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" || f.Name == "version" {
			return
		}
		key := "ROWSMITH_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := lookup(getenv, key)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: invalid value %q for --%s: %w", key, v, f.Name, err)
		}
	})
	return firstErr
}

func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	return v, v != ""
}

func logger(name string) logging.Logger {
	return logs.GetLogger(name)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
