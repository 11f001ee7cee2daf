package snippets

import (
	"testing"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighlight(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "keyword and integer",
			input:    "°1let° x = °42°",
			expected: `<span class="kw">let</span> x = <span class="int">2</span>`,
		},
		{
			name:     "all classes",
			input:    "°1fn° °3main°(°2\"hi\"°, °47°)",
			expected: `<span class="kw">fn</span> <span class="fn">main</span>(<span class="str">"hi"</span>, <span class="int">7</span>)`,
		},
		{
			name:     "empty body",
			input:    "a°1°b",
			expected: `a<span class="kw"></span>b`,
		},
		{
			name:     "no markup",
			input:    "plain text <b>kept</b>",
			expected: "plain text <b>kept</b>",
		},
		{
			name:     "unpaired degree sign stays literal",
			input:    "it is 20° outside",
			expected: "it is 20° outside",
		},
		{
			name:     "degree sign without digit",
			input:    "°x° then °2s°",
			expected: `°x° then <span class="str">s</span>`,
		},
		{
			name:     "multiline body",
			input:    "°2line one\nline two°",
			expected: "<span class=\"str\">line one\nline two</span>",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Highlight([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestHighlightUnknownClass(t *testing.T) {
	out, err := Highlight([]byte("ok °1a° bad °7x°"))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, kerrors.ErrUnknownHighlightClass)

	var kerr *kerrors.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, len("ok °1a° bad "), kerr.Offset)
}

func TestHighlightDoesNotAliasInput(t *testing.T) {
	src := []byte("nothing to do")
	out, err := Highlight(src)
	require.NoError(t, err)
	out[0] = 'N'
	assert.Equal(t, "nothing to do", string(src))
}
