package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"codeaudit/internal/catalog"
	"codeaudit/internal/scanner"

	"github.com/spf13/cobra"
)

var categoriesJSON bool

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the vulnerability categories that can be detected",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat := catalog.Default()
		detector, err := scanner.NewDetector(cat)
		if err != nil {
			return err
		}
		infos := cat.Infos()
		for i := range infos {
			infos[i].PatternCount = detector.PatternCount(infos[i].ID)
		}

		out := cmd.OutOrStdout()
		if categoriesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSEVERITY\tCWE\tPATTERNS\tOWASP")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", info.ID, info.DefaultSeverity, info.WeaknessID, info.PatternCount, info.OWASP)
		}
		return tw.Flush()
	},
}

func init() {
	categoriesCmd.Flags().BoolVar(&categoriesJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(categoriesCmd)
}
