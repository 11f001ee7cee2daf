package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/koisite/internal/assemble"
	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/minify"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Replace snippet markers in a template with their fragments",
	Long: `Assemble reads a template, replaces every <!-- SNIPPET name --> marker with
the fragment <fragments>/<name><extension> and writes the result. It does
not generate fragments; run "koisite snippets" (or "koisite build") first.

Examples:
  koisite assemble                                   # Use the configured paths
  koisite assemble --template page.html --output out.html
  koisite assemble --list                            # Show markers and their fragments`,
	Args: cobra.NoArgs,
	RunE: runAssemble,
}

var (
	assembleTemplate  string
	assembleFragments string
	assembleOutput    string
	assembleNoMinify  bool
	assembleList      bool
)

func init() {
	rootCmd.AddCommand(assembleCmd)

	assembleCmd.Flags().StringVar(&assembleTemplate, "template", "", "Template file (default site.template)")
	assembleCmd.Flags().StringVar(&assembleFragments, "fragments", "", "Fragment directory (default snippets.fragment_dir)")
	assembleCmd.Flags().StringVarP(&assembleOutput, "output", "o", "", "Output file (default <output_dir>/<template name>)")
	assembleCmd.Flags().BoolVar(&assembleNoMinify, "no-minify", false, "Write the assembled HTML without minifying it")
	assembleCmd.Flags().BoolVar(&assembleList, "list", false, "List the markers in the template instead of assembling")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	template := cfg.TemplatePath()
	if assembleTemplate != "" {
		template = assembleTemplate
	}
	fragments := cfg.FragmentPath()
	if assembleFragments != "" {
		fragments = assembleFragments
	}
	output := cfg.HTMLOutputPath()
	if assembleOutput != "" {
		output = assembleOutput
	}

	resolver := assemble.NewDirResolver(fragments, cfg.Snippets.Extension)

	if assembleList {
		return listMarkers(cmd, template, resolver)
	}

	opts := assemble.FileOptions{
		Template: template,
		Output:   output,
		Resolver: resolver,
	}
	if cfg.HTML.Minify && !assembleNoMinify {
		opts.Post = minify.New().HTML
	}

	res, err := assemble.AssembleFile(cmd.Context(), opts)
	if err != nil {
		return err
	}

	logger.Info(cmd.Context(), "Assembled page", "template", template, "output", output,
		"markers", res.Markers, "bytes", res.Bytes)
	return nil
}

func listMarkers(cmd *cobra.Command, template string, resolver *assemble.DirResolver) error {
	src, err := os.ReadFile(template)
	if err != nil {
		return kerrors.NewIOFailure(template, "read template", err)
	}

	markers, err := assemble.Markers(src)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tOFFSET\tFRAGMENT\tSTATUS")
	for _, m := range markers {
		status := "ok"
		p, err := resolver.Path(m.Name)
		if err != nil {
			status = "invalid"
		} else if _, err := os.Stat(p); err != nil {
			status = "missing"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.Name, m.Start, p, status)
	}
	return tw.Flush()
}
