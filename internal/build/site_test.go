package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/koisite/internal/config"
	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplate = `<!DOCTYPE html>
<html>
  <body>
    <pre><!-- SNIPPET hello --></pre>
  </body>
</html>
`

func writeSiteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fakeSass(t *testing.T) process.Runner {
	return process.RunnerFunc(func(_ context.Context, cmd process.Command) (process.Result, error) {
		if cmd.Name != "sass" {
			t.Errorf("unexpected command %s", cmd)
		}
		return process.Result{Stdout: []byte("pre {\n  color: red;\n}\n")}, nil
	})
}

func newTestSite(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	writeSiteFile(t, root, "index.html", testTemplate)
	writeSiteFile(t, root, "snippets/hello.koi", "°1let° x = °42°")
	writeSiteFile(t, root, "style.scss", "$c: red; pre { color: $c; }")
	writeSiteFile(t, root, "assets/robots.txt", "User-agent: *\n")

	cfg := config.Default()
	cfg.Site.Root = root
	return cfg, root
}

func TestSiteBuild(t *testing.T) {
	cfg, root := newTestSite(t)

	site, err := NewSite(cfg, nil, WithRunner(fakeSass(t)))
	require.NoError(t, err)
	require.NoError(t, site.Run(context.Background(), TaskBuild))

	html, err := os.ReadFile(filepath.Join(root, "dist", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), `<pre><span class="kw">let</span> x = <span class="int">2</span></pre>`)
	assert.NotContains(t, string(html), "SNIPPET")

	fragment, err := os.ReadFile(filepath.Join(root, "snippets", "out", "hello.koi"))
	require.NoError(t, err)
	assert.Equal(t, `<span class="kw">let</span> x = <span class="int">2</span>`, string(fragment))

	css, err := os.ReadFile(filepath.Join(root, "dist", "style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "color:red")
	assert.NotContains(t, string(css), "\n")

	_, err = os.Stat(filepath.Join(root, "dist", "assets", "robots.txt"))
	assert.NoError(t, err)

	last := site.Pipeline().Last()
	assert.ElementsMatch(t, []string{TaskSnippets, TaskHTML, TaskCSS, TaskAssets}, keys(last))
	assert.Equal(t, []string{filepath.Join(root, "dist", "index.html")}, last[TaskHTML].Outputs)
	assert.Empty(t, site.Pipeline().Failures())
}

func keys(m map[string]Result) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSiteMissingFragment(t *testing.T) {
	cfg, root := newTestSite(t)
	writeSiteFile(t, root, "index.html", "<p><!-- SNIPPET missing --></p>")

	site, err := NewSite(cfg, nil, WithRunner(fakeSass(t)))
	require.NoError(t, err)

	err = site.Run(context.Background(), TaskBuild)
	require.Error(t, err)
	assert.True(t, kerrors.IsMissingFragment(err))

	_, statErr := os.Stat(filepath.Join(root, "dist", "index.html"))
	assert.True(t, os.IsNotExist(statErr), "no partial output")

	_, statErr = os.Stat(filepath.Join(root, "dist", "style.css"))
	assert.NoError(t, statErr, "sibling branches still finish")

	failures := site.Pipeline().Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, TaskHTML, failures[0].Task)
}

func TestSiteSnippetFailureSkipsAssembly(t *testing.T) {
	cfg, root := newTestSite(t)
	writeSiteFile(t, root, "snippets/bad.koi", "°8oops°")

	site, err := NewSite(cfg, nil, WithRunner(fakeSass(t)))
	require.NoError(t, err)

	err = site.Run(context.Background(), TaskPage)
	assert.ErrorIs(t, err, kerrors.ErrUnknownHighlightClass)

	_, ran := site.Pipeline().Last()[TaskHTML]
	assert.False(t, ran, "html never starts after snippets fail")
}

func TestSiteExternalGenerator(t *testing.T) {
	cfg, root := newTestSite(t)
	cfg.Snippets.Command = "python highlighter.py"

	var calls []process.Command
	runner := process.RunnerFunc(func(_ context.Context, cmd process.Command) (process.Result, error) {
		calls = append(calls, cmd)
		if cmd.Name == "python" {
			writeSiteFile(t, root, "snippets/out/hello.koi", "from python")
		}
		return process.Result{}, nil
	})

	site, err := NewSite(cfg, nil, WithRunner(runner))
	require.NoError(t, err)
	require.NoError(t, site.Run(context.Background(), TaskPage))

	require.Len(t, calls, 1)
	assert.Equal(t, filepath.Join(root, "snippets"), calls[0].Dir)
	assert.Equal(t, []string{"highlighter.py"}, calls[0].Args)

	html, err := os.ReadFile(filepath.Join(root, "dist", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "from python")
}

func TestSiteTheme(t *testing.T) {
	cfg, root := newTestSite(t)
	cfg.Snippets.Theme = "monokai"
	cfg.CSS.Minify = false

	site, err := NewSite(cfg, nil, WithRunner(fakeSass(t)))
	require.NoError(t, err)
	require.NoError(t, site.Run(context.Background(), TaskCSS))

	css, err := os.ReadFile(filepath.Join(root, "dist", "style.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "pre {\n  color: red;\n}\n")
	assert.Contains(t, string(css), ".kw{")

	cfg.Snippets.Theme = "not-a-theme"
	_, err = NewSite(cfg, nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidConfig)
}

func TestSiteUnknownTask(t *testing.T) {
	cfg, _ := newTestSite(t)
	site, err := NewSite(cfg, nil)
	require.NoError(t, err)

	assert.Error(t, site.Run(context.Background(), "deploy"))
	assert.Equal(t, []string{"assets", "build", "css", "html", "page", "snippets"}, site.TaskNames())
}

func TestSiteRejectsBadSnippetCommand(t *testing.T) {
	cfg, _ := newTestSite(t)
	cfg.Snippets.Command = `python "unterminated`

	_, err := NewSite(cfg, nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidConfig)
}

func TestClean(t *testing.T) {
	cfg, root := newTestSite(t)
	writeSiteFile(t, root, "dist/index.html", "old")
	writeSiteFile(t, root, "snippets/out/hello.koi", "old")

	require.NoError(t, Clean(cfg))

	_, err := os.Stat(filepath.Join(root, "dist"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "snippets", "out"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "snippets", "hello.koi"))
	assert.NoError(t, err, "sources survive")

	t.Run("fragment dir shared with sources is kept", func(t *testing.T) {
		cfg.Snippets.FragmentDir = cfg.Snippets.SourceDir
		require.NoError(t, Clean(cfg))
		_, err := os.Stat(filepath.Join(root, "snippets", "hello.koi"))
		assert.NoError(t, err)
	})

	t.Run("output dir equal to root is refused", func(t *testing.T) {
		cfg.Site.OutputDir = "."
		assert.ErrorIs(t, Clean(cfg), kerrors.ErrInvalidConfig)
	})
}
