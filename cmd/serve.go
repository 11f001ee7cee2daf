package cmd

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/koisite/internal/build"
	"github.com/conneroisu/koisite/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the site with live reload",
	Long: `Serve watches the sources like "koisite watch" and serves the output
directory over HTTP. Pages reload after every rebuild; stylesheet-only
changes are swapped in place. While a task is failing, HTML pages show an
error overlay instead.

Examples:
  koisite serve                  # http://localhost:8080
  koisite serve --port 3000      # Custom port
  koisite serve --open           # Open the browser`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().Bool("open", false, "Open the browser once the server is up")

	AddFlagValidation(serveCmd, "port", ValidatePort)
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", cmd.Flags().Lookup("open"))

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	site, err := build.NewSite(cfg, logger)
	if err != nil {
		return err
	}
	srv := server.New(cfg, site.Pipeline(), logger)

	p := pool.New().WithContext(cmd.Context()).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		return watchSite(ctx, site, logger, srv.Notify)
	})
	p.Go(srv.Start)
	return p.Wait()
}
