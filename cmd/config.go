package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/witanlabs/rowsmith/config"
	"github.com/witanlabs/rowsmith/internal/unit"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect the configuration file",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadSettings(cmd, false)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (API key redacted)",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.FilePath()
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	p, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists; use --force to overwrite it", p)
	}
	if err := config.Save(p, config.Default()); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if jsonOutput {
		return jsonPrint(map[string]string{"path": p})
	}
	fmt.Printf("Created %s with default settings. Edit it to choose a backend and prompt.\n", p)
	return nil
}

type configShowOutput struct {
	Path       string        `json:"path"`
	Valid      bool          `json:"valid"`
	Problems   string        `json:"problems,omitempty"`
	Convention string        `json:"unit_naming"`
	Pattern    string        `json:"unit_pattern"`
	Config     config.Config `json:"config"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	p, err := resolveConfigPath()
	if err != nil {
		return err
	}
	out := configShowOutput{
		Path:       p,
		Valid:      true,
		Convention: unit.Convention,
		Pattern:    unit.Pattern,
		Config:     appConfig.Redacted(),
	}
	if err := appConfig.Validate(); err != nil {
		out.Valid = false
		out.Problems = err.Error()
	}

	if jsonOutput {
		return jsonPrint(out)
	}
	body, err := json.MarshalIndent(out.Config, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("Config file: %s\n", out.Path)
	fmt.Printf("Unit naming: %s (%s)\n", out.Convention, out.Pattern)
	if !out.Valid {
		fmt.Printf("Problems: %s\n", out.Problems)
	}
	fmt.Println(string(body))
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	p, err := resolveConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(p)
	return nil
}
