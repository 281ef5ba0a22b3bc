package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/witanlabs/rowsmith/internal/extract"
)

var extractOutDir string

var extractCmd = &cobra.Command{
	Use:   "extract <source>",
	Short: "Write the first column of each data row to its own text file",
	Long: `Extract the first column of the first sheet into one UTF-8 text file per
data row.

Behavior:
  - Row 1 is the header; its first cell becomes the column label.
  - Files are named row_<id>_col_<label>.txt where <id> is the spreadsheet
    row number (the first data row is 2).
  - Either every file is written or none is.
  - A sheet with only a header extracts nothing and creates no directory.

Supported sources: .xlsx, .xlsm and .csv. Legacy .xls must be converted first.

Examples:
  rowsmith extract description.xlsx
  rowsmith extract products.csv -o units
  rowsmith --json extract description.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutDir, "output", "o", "extracted_descriptions", "Directory to write unit files into")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	res, err := extract.Extract(commandContext(cmd), args[0], extractOutDir, logger("extract"))
	if err != nil {
		return err
	}

	if jsonOutput {
		return jsonPrint(res)
	}
	if res.Count == 0 {
		fmt.Printf("No data rows in %s; nothing extracted.\n", args[0])
		return nil
	}
	fmt.Printf("Extracted %d unit(s) from column %q into %s\n", res.Count, res.Label, res.Dir)
	return nil
}
