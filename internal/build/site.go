package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/conneroisu/koisite/internal/assemble"
	"github.com/conneroisu/koisite/internal/assets"
	"github.com/conneroisu/koisite/internal/config"
	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/logging"
	"github.com/conneroisu/koisite/internal/minify"
	"github.com/conneroisu/koisite/internal/process"
	"github.com/conneroisu/koisite/internal/snippets"
	"github.com/conneroisu/koisite/internal/stylesheet"
	"github.com/natefinch/atomic"
)

// Task names.
const (
	TaskSnippets = "snippets"
	TaskHTML     = "html"
	TaskCSS      = "css"
	TaskAssets   = "assets"
	TaskPage     = "page"
	TaskBuild    = "build"
)

// Site holds the build graph for one site configuration:
//
//	build = parallel(series(snippets, html), css, assets)
//	page  = series(snippets, html)
//
// Leaf tasks run through the Pipeline, so each is serialized against
// itself and recorded in its metrics.
type Site struct {
	cfg          *config.Config
	logger       logging.Logger
	pipeline     *Pipeline
	runner       process.Runner
	minifier     *minify.Minifier
	fingerprints *Fingerprints
	generator    snippets.Generator
	assets       *assets.Processor

	tasks map[string]Task
}

// Option configures a Site.
type Option func(*Site)

// WithRunner sets the process runner used for external commands.
func WithRunner(runner process.Runner) Option {
	return func(s *Site) { s.runner = runner }
}

// WithPipeline shares an existing pipeline.
func WithPipeline(pipeline *Pipeline) Option {
	return func(s *Site) { s.pipeline = pipeline }
}

// NewSite builds the task graph for cfg.
func NewSite(cfg *config.Config, logger logging.Logger, opts ...Option) (*Site, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Site{
		cfg:          cfg,
		logger:       logger.WithComponent("site"),
		runner:       process.ExecRunner{},
		minifier:     minify.New(),
		fingerprints: NewFingerprints(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = NewPipeline(logger)
	}

	if cfg.Snippets.Command != "" {
		cmd, err := process.ParseCommandLine(cfg.Snippets.Command, cfg.SnippetSourcePath())
		if err != nil {
			return nil, kerrors.NewConfigError("snippets.command: " + err.Error())
		}
		s.generator = &snippets.CommandGenerator{
			Runner:      s.runner,
			Command:     cmd,
			FragmentDir: cfg.FragmentPath(),
			Ext:         cfg.Snippets.Extension,
		}
	} else {
		s.generator = &snippets.BuiltinGenerator{
			SourceDir:   cfg.SnippetSourcePath(),
			FragmentDir: cfg.FragmentPath(),
			Ext:         cfg.Snippets.Extension,
		}
	}

	if cfg.Snippets.Theme != "" {
		if _, err := snippets.ThemeCSS(cfg.Snippets.Theme); err != nil {
			return nil, err
		}
	}

	optimizer := &assets.Optimizer{
		Minifier:    s.minifier,
		JPEGQuality: cfg.Assets.JPEGQuality,
		Disabled:    !cfg.Assets.Optimize,
	}
	s.assets = assets.NewProcessor(optimizer, s.fingerprints, cfg.Build.Workers, logger)

	snippetsTask := s.pipeline.Wrap(newLeaf(TaskSnippets, s.runSnippets))
	htmlTask := s.pipeline.Wrap(newLeaf(TaskHTML, s.runHTML))
	cssTask := s.pipeline.Wrap(newLeaf(TaskCSS, s.runCSS))
	assetsTask := s.pipeline.Wrap(newLeaf(TaskAssets, s.runAssets))
	page := Series(TaskPage, snippetsTask, htmlTask)

	s.tasks = map[string]Task{
		TaskSnippets: snippetsTask,
		TaskHTML:     htmlTask,
		TaskCSS:      cssTask,
		TaskAssets:   assetsTask,
		TaskPage:     page,
		TaskBuild:    Parallel(TaskBuild, cfg.Build.Workers, page, cssTask, assetsTask),
	}

	return s, nil
}

// Task looks up a task by name.
func (s *Site) Task(name string) (Task, error) {
	t, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("unknown task %q (have %v)", name, s.TaskNames())
	}
	return t, nil
}

// TaskNames lists the task names, sorted.
func (s *Site) TaskNames() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run runs the named task.
func (s *Site) Run(ctx context.Context, name string) error {
	t, err := s.Task(name)
	if err != nil {
		return err
	}
	return t.Run(ctx)
}

// Pipeline returns the pipeline the leaf tasks run through.
func (s *Site) Pipeline() *Pipeline { return s.pipeline }

// Fingerprints returns the content hash cache.
func (s *Site) Fingerprints() *Fingerprints { return s.fingerprints }

// Config returns the configuration the site was built from.
func (s *Site) Config() *config.Config { return s.cfg }

func (s *Site) runSnippets(ctx context.Context) ([]string, error) {
	report, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, err
	}
	return report.Fragments, nil
}

func (s *Site) runHTML(ctx context.Context) ([]string, error) {
	opts := assemble.FileOptions{
		Template: s.cfg.TemplatePath(),
		Output:   s.cfg.HTMLOutputPath(),
		Resolver: assemble.NewDirResolver(s.cfg.FragmentPath(), s.cfg.Snippets.Extension),
	}
	if s.cfg.HTML.Minify {
		opts.Post = s.minifier.HTML
	}

	result, err := assemble.AssembleFile(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "Assembled page",
		"markers", result.Markers,
		"bytes", result.Bytes)

	return []string{opts.Output}, nil
}

func (s *Site) runCSS(ctx context.Context) ([]string, error) {
	compiler := &stylesheet.Compiler{
		Runner:  s.runner,
		Command: s.cfg.CSS.Command,
		Args:    s.cfg.CSS.Args,
		Root:    s.cfg.Site.Root,
	}

	css, err := compiler.Compile(ctx, s.cfg.StylesheetPath())
	if err != nil {
		return nil, err
	}

	if theme := s.cfg.Snippets.Theme; theme != "" {
		rules, err := snippets.ThemeCSS(theme)
		if err != nil {
			return nil, err
		}
		css = append(append(css, '\n'), rules...)
	}

	if s.cfg.CSS.Minify {
		if css, err = s.minifier.CSS(css); err != nil {
			return nil, err
		}
	}

	out := s.cfg.CSSOutputPath()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, kerrors.NewIOFailure(out, "create output directory", err)
	}
	if err := atomic.WriteFile(out, bytes.NewReader(css)); err != nil {
		return nil, kerrors.NewIOFailure(out, "write stylesheet", err)
	}

	return []string{out}, nil
}

func (s *Site) runAssets(ctx context.Context) ([]string, error) {
	report, err := s.assets.Process(ctx, s.cfg.AssetsPath(), s.cfg.AssetsOutputPath())
	if err != nil {
		return nil, err
	}
	return report.Written, nil
}

// Clean removes the output directory and generated fragments. The fragment
// directory is kept when it is also the snippet source directory or the
// site root.
func Clean(cfg *config.Config) error {
	root := filepath.Clean(cfg.Site.Root)

	targets := []string{cfg.OutputPath()}
	if frag := filepath.Clean(cfg.FragmentPath()); frag != filepath.Clean(cfg.SnippetSourcePath()) {
		targets = append(targets, frag)
	}

	for _, dir := range targets {
		if filepath.Clean(dir) == root {
			return kerrors.NewConfigError(fmt.Sprintf("refusing to remove site root %s", dir))
		}
		if err := os.RemoveAll(dir); err != nil {
			return kerrors.NewIOFailure(dir, "remove directory", err)
		}
	}
	return nil
}

// leaf is a Task that remembers the outputs of its last successful run.
type leaf struct {
	name string
	fn   func(ctx context.Context) ([]string, error)

	mu      sync.Mutex
	outputs []string
}

func newLeaf(name string, fn func(ctx context.Context) ([]string, error)) *leaf {
	return &leaf{name: name, fn: fn}
}

func (l *leaf) Name() string { return l.name }

func (l *leaf) Run(ctx context.Context) error {
	outputs, err := l.fn(ctx)
	if err != nil {
		return kerrors.NewBuildError(l.name, err)
	}

	l.mu.Lock()
	l.outputs = outputs
	l.mu.Unlock()
	return nil
}

func (l *leaf) Outputs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.outputs))
	copy(out, l.outputs)
	return out
}
