// Package snippets turns annotated Koi source files into the HTML fragments
// the template assembler splices into the page.
//
// Source files mark highlighted tokens inline as °Dtext°, where D is a
// single digit naming the token class:
//
//	1  keyword   -> <span class="kw">
//	2  string    -> <span class="str">
//	3  function  -> <span class="fn">
//	4  integer   -> <span class="int">
//
// Text outside markup is copied verbatim, including any unpaired °.
package snippets

import (
	"bytes"
	"regexp"

	kerrors "github.com/conneroisu/koisite/internal/errors"
)

// Classes maps highlight digits to CSS class names.
var Classes = map[byte]string{
	'1': "kw",
	'2': "str",
	'3': "fn",
	'4': "int",
}

var markup = regexp.MustCompile(`°([0-9])([^°]*)°`)

// Highlight rewrites every °D…° run in src as a span carrying the class for
// D. Runs are matched left to right and never overlap.
func Highlight(src []byte) ([]byte, error) {
	matches := markup.FindAllSubmatchIndex(src, -1)
	if len(matches) == 0 {
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(src) + len(matches)*len(`<span class="str"></span>`))

	last := 0
	for _, m := range matches {
		digit := src[m[2]]
		class, ok := Classes[digit]
		if !ok {
			return nil, kerrors.NewUnknownHighlightClass(digit, m[0])
		}

		buf.Write(src[last:m[0]])
		buf.WriteString(`<span class="`)
		buf.WriteString(class)
		buf.WriteString(`">`)
		buf.Write(src[m[4]:m[5]])
		buf.WriteString(`</span>`)
		last = m[1]
	}
	buf.Write(src[last:])

	return buf.Bytes(), nil
}
