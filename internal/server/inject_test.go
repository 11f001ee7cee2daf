package server

import (
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/koisite/internal/build"
	kerrors "github.com/conneroisu/koisite/internal/errors"
)

func TestInjectScript(t *testing.T) {
	const s = "<script>x</script>"

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "before body end",
			doc:  "<html><body><p>hi</p></body></html>",
			want: "<html><body><p>hi</p>" + s + "</body></html>",
		},
		{
			name: "last body end wins",
			doc:  "<body>a</body><body>b</body>",
			want: "<body>a</body><body>b" + s + "</body>",
		},
		{
			name: "no body appends",
			doc:  "<p>fragment</p>",
			want: "<p>fragment</p>" + s,
		},
		{
			name: "ignores body end inside comment",
			doc:  "<body><!-- </body> --></body>",
			want: "<body><!-- </body> -->" + s + "</body>",
		},
		{
			name: "ignores body end inside script",
			doc:  "<body><script>var t = \"</body>\";</script>\n</body>",
			want: "<body><script>var t = \"</body>\";</script>\n" + s + "</body>",
		},
		{
			name: "uppercase tag",
			doc:  "<BODY>x</BODY>",
			want: "<BODY>x" + s + "</BODY>",
		},
		{
			name: "empty document",
			doc:  "",
			want: s,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(InjectScript([]byte(tt.doc), s)))
		})
	}
}

func TestInjectScriptDoesNotAlias(t *testing.T) {
	doc := []byte("<body></body>")
	out := InjectScript(doc, "<script></script>")
	out[0] = 'X'
	assert.Equal(t, "<body></body>", string(doc))
}

func TestReloadScriptTargetsSocket(t *testing.T) {
	assert.Contains(t, reloadScript, wsPath)
	assert.True(t, strings.HasPrefix(reloadScript, "<script>"))
}

func TestOverlay(t *testing.T) {
	failures := []build.Result{
		{Task: "css", Err: kerrors.NewBuildError("css", kerrors.NewCommandFailed("sass", []byte("Error: <expected> ;"), assert.AnError))},
		{Task: "html", Err: kerrors.NewBuildError("html", kerrors.NewMissingFragment("intro", nil))},
	}

	html, err := templ.ToGoHTML(t.Context(), Overlay(failures, "<script>reload()</script>"))
	require.NoError(t, err)
	out := string(html)

	assert.Contains(t, out, "<h1>Build failed</h1>")
	assert.Contains(t, out, "<h2>css</h2>")
	assert.Contains(t, out, "<h2>html</h2>")
	assert.Contains(t, out, "Error: &lt;expected&gt; ;")
	assert.NotContains(t, out, "<expected>")
	assert.Contains(t, out, "<ul><li><code>&lt;expected&gt; ;</code></li></ul>")
	assert.Contains(t, out, `<p class="hint">Check that the command is installed`)
	assert.Equal(t, 2, strings.Count(out, "<section>"))
	assert.Contains(t, out, "intro")
	assert.Contains(t, out, "koisite snippets")
	assert.Contains(t, out, "<script>reload()</script></body></html>")
}
