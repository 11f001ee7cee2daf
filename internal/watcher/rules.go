package watcher

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/koisite/internal/config"
)

// Rule names a task to run when a changed path matches one of Patterns.
//
// Patterns are slash paths relative to the site root. A pattern ending in
// "/" matches everything below that directory; any other pattern is
// matched with path.Match.
type Rule struct {
	Name     string
	Patterns []string
}

// Matches reports whether rel triggers the rule.
func (r Rule) Matches(rel string) bool {
	for _, p := range r.Patterns {
		if strings.HasSuffix(p, "/") {
			dir := strings.TrimSuffix(p, "/")
			if rel == dir || strings.HasPrefix(rel, p) {
				return true
			}
			continue
		}
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Router maps change batches to rule names.
type Router struct {
	rules  []Rule
	ignore FileFilter
}

// NewRouter returns a router over rules. Paths under any of ignoredDirs
// never match.
func NewRouter(rules []Rule, ignoredDirs ...string) *Router {
	return &Router{rules: rules, ignore: ExcludeDirs(ignoredDirs...)}
}

// Rules returns the router's rules.
func (r *Router) Rules() []Rule { return r.rules }

// Route returns the names of the rules triggered by events, each once, in
// rule order.
func (r *Router) Route(events []ChangeEvent) []string {
	hit := make([]bool, len(r.rules))
	for _, ev := range events {
		if !r.ignore(ev.Rel) {
			continue
		}
		for i, rule := range r.rules {
			if !hit[i] && rule.Matches(ev.Rel) {
				hit[i] = true
			}
		}
	}

	var names []string
	for i, rule := range r.rules {
		if hit[i] {
			names = append(names, rule.Name)
		}
	}
	return names
}

// All returns every rule name, for the initial run.
func (r *Router) All() []string {
	names := make([]string, len(r.rules))
	for i, rule := range r.rules {
		names[i] = rule.Name
	}
	return names
}

// DefaultRules are the watch rules for a site:
//
//	page   <- template, <source_dir>/*<ext>
//	css    <- stylesheet
//	assets <- <assets_dir>/
func DefaultRules(cfg *config.Config) []Rule {
	return []Rule{
		{Name: "page", Patterns: []string{
			rootRel(cfg, cfg.Site.Template),
			path.Join(rootRel(cfg, cfg.Snippets.SourceDir), "*"+cfg.Snippets.Extension),
		}},
		{Name: "css", Patterns: []string{rootRel(cfg, cfg.Site.Stylesheet)}},
		{Name: "assets", Patterns: []string{rootRel(cfg, cfg.Site.AssetsDir) + "/"}},
	}
}

// IgnoredDirs are the generated directories that must never trigger a
// rebuild.
func IgnoredDirs(cfg *config.Config) []string {
	return []string{
		rootRel(cfg, cfg.Site.OutputDir),
		rootRel(cfg, cfg.Snippets.FragmentDir),
	}
}

// rootRel turns a configured path into a slash path relative to the site
// root.
func rootRel(cfg *config.Config, p string) string {
	if filepath.IsAbs(p) {
		root, err := filepath.Abs(cfg.Site.Root)
		if err == nil {
			if rel, err := filepath.Rel(root, p); err == nil {
				p = rel
			}
		}
	}
	return path.Clean(filepath.ToSlash(p))
}
