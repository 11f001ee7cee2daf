package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/koisite/internal/build"
)

var snippetsCmd = &cobra.Command{
	Use:   "snippets",
	Short: "Generate highlighted snippet fragments",
	Long: `Snippets turns every <source_dir>/*<extension> file into an HTML fragment
in the fragment directory, either with the built-in highlighter or with
snippets.command when one is configured.`,
	Args: cobra.NoArgs,
	RunE: runSnippets,
}

func init() {
	rootCmd.AddCommand(snippetsCmd)
}

func runSnippets(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	site, err := build.NewSite(cfg, logger)
	if err != nil {
		return err
	}

	if err := site.Run(cmd.Context(), build.TaskSnippets); err != nil {
		return err
	}

	for _, fragment := range site.Pipeline().Last()[build.TaskSnippets].Outputs {
		fmt.Fprintln(cmd.OutOrStdout(), fragment)
	}
	return nil
}
