package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/koisite/internal/build"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the site into the output directory",
	Long: `Build runs the whole pipeline:

  build = parallel(series(snippets, html), css, assets)

Snippets are highlighted into fragments before the page is assembled; the
stylesheet and images are processed alongside. The command exits non-zero
when any task fails and reports every failure.

Examples:
  koisite build            # Build into dist/
  koisite build --clean    # Remove dist/ and generated fragments first`,
	RunE: runBuild,
}

var buildClean bool

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove build output and generated fragments before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	if buildClean {
		if err := build.Clean(cfg); err != nil {
			return fmt.Errorf("clean: %w", err)
		}
		logger.Info(cmd.Context(), "Cleaned build output", "dir", cfg.OutputPath())
	}

	site, err := build.NewSite(cfg, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	err = site.Run(cmd.Context(), build.TaskBuild)
	printSummary(cmd.OutOrStdout(), site.Pipeline(), time.Since(start))
	return err
}

// printSummary writes one line per leaf task of the last run.
func printSummary(w io.Writer, p *build.Pipeline, elapsed time.Duration) {
	title := cases.Title(language.English)
	last := p.Last()

	for _, name := range []string{build.TaskSnippets, build.TaskHTML, build.TaskCSS, build.TaskAssets} {
		res, ok := last[name]
		if !ok {
			fmt.Fprintf(w, "  %-9s skipped\n", title.String(name))
			continue
		}
		status := "ok"
		if res.Failed() {
			status = "FAILED"
		}
		line := fmt.Sprintf("  %-9s %-6s %s", title.String(name), status, res.Duration.Round(time.Millisecond))
		if n := len(res.Outputs); n > 0 {
			line += fmt.Sprintf("  (%d %s)", n, plural(n, "file", "files"))
		}
		fmt.Fprintln(w, line)
	}

	snap := p.Metrics()
	fmt.Fprintf(w, "%s in %s, %d of %d tasks failed\n",
		title.String(outcome(snap.FailedRuns)), elapsed.Round(time.Millisecond), snap.FailedRuns, snap.TotalRuns)
}

func outcome(failed int64) string {
	if failed > 0 {
		return "build failed"
	}
	return "built"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
