package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/witanlabs/rowsmith/internal/merge"
)

var mergeOutPath string

var mergeCmd = &cobra.Command{
	Use:   "merge <source> [edits-dir]",
	Short: "Write edited unit files back into a copy of the spreadsheet",
	Long: `Merge unit files back into a copy of <source>. The source itself is never
modified.

Behavior:
  - Every row_<id>_col_<label>.txt in [edits-dir] (default reworded_descriptions)
    replaces the first cell of spreadsheet row <id>.
  - Rows without a file keep their value; files without a row are reported
    as dropped.
  - Files whose names do not follow the convention are skipped with a warning.
  - The output defaults to <name>_new<ext> next to the source.

Examples:
  rowsmith merge description.xlsx
  rowsmith merge description.xlsx extracted_descriptions -o description_edited.xlsx
  rowsmith --json merge products.csv units`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutPath, "output", "o", "", "Output spreadsheet path (default <name>_new<ext>)")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	source := args[0]
	editsDir := "reworded_descriptions"
	if len(args) > 1 {
		editsDir = args[1]
	}
	out := mergeOutPath
	if out == "" {
		out = merge.DefaultOutputPath(source)
	}

	res, err := merge.Merge(commandContext(cmd), source, editsDir, out, logger("merge"))
	if err != nil {
		return err
	}

	if jsonOutput {
		return jsonPrint(res)
	}
	fmt.Printf("Updated %d row(s); wrote %s\n", res.Updated, res.Output)
	if len(res.Dropped) > 0 {
		ids := make([]string, len(res.Dropped))
		for i, id := range res.Dropped {
			ids[i] = id.String()
		}
		fmt.Printf("Dropped %d edit(s) with no matching row: %s\n", len(ids), strings.Join(ids, ", "))
	}
	return nil
}
