package cmd

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/conneroisu/koisite/internal/build"
	"github.com/conneroisu/koisite/internal/logging"
	"github.com/conneroisu/koisite/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild whenever a source file changes",
	Long: `Watch runs every rule once, then re-runs the rules a change affects:

  page    <- template, <source_dir>/*<extension>
  css     <- stylesheet
  assets  <- <assets_dir>/

Failures are logged and retried on the next change.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	site, err := build.NewSite(cfg, logger)
	if err != nil {
		return err
	}

	return watchSite(cmd.Context(), site, logger, nil)
}

// notifyFunc is called after each rule run with its outcome.
type notifyFunc func(rule string, err error)

// watchSite runs every rule once and then on each change until ctx is
// done.
func watchSite(ctx context.Context, site *build.Site, logger logging.Logger, notify notifyFunc) error {
	cfg := site.Config()

	fw, err := watcher.NewFileWatcher(cfg.Site.Root, cfg.Build.Debounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Stop()

	ignored := watcher.IgnoredDirs(cfg)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.ExcludeDirs(ignored...))

	if err := fw.AddRecursive(fw.Root()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.Site.Root, err)
	}

	router := watcher.NewRouter(watcher.DefaultRules(cfg), ignored...)
	runRules(ctx, site, logger, notify, router.All())

	fw.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		rules := router.Route(events)
		if len(rules) == 0 {
			return nil
		}
		logger.Info(ctx, "Change detected", "files", len(events), "rules", rules)
		runRules(ctx, site, logger, notify, rules)
		return nil
	})

	if err := fw.Start(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "Watching for changes", "root", fw.Root())

	<-ctx.Done()
	return nil
}

// runRules runs the named tasks concurrently. Failures are logged, not
// returned, so the watch loop keeps going.
func runRules(ctx context.Context, site *build.Site, logger logging.Logger, notify notifyFunc, rules []string) {
	p := pool.New().WithMaxGoroutines(len(rules) + 1)
	for _, rule := range rules {
		p.Go(func() {
			err := site.Run(ctx, rule)
			if err != nil && ctx.Err() == nil {
				logger.Error(ctx, err, "Rebuild failed", "rule", rule)
			}
			if notify != nil && ctx.Err() == nil {
				notify(rule, err)
			}
		})
	}
	p.Wait()
}
