package snippets

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
	kerrors "github.com/conneroisu/koisite/internal/errors"
)

// themeTokens pairs each highlight class with the chroma token whose style
// it borrows.
var themeTokens = []struct {
	class string
	token chroma.TokenType
}{
	{"kw", chroma.Keyword},
	{"str", chroma.LiteralString},
	{"fn", chroma.NameFunction},
	{"int", chroma.LiteralNumberInteger},
}

// ThemeCSS renders CSS rules for the highlight classes using the named chroma
// style.
func ThemeCSS(styleName string) ([]byte, error) {
	style := styles.Get(styleName)
	if style == styles.Fallback && !strings.EqualFold(styleName, styles.Fallback.Name) {
		return nil, kerrors.NewConfigError(fmt.Sprintf("unknown chroma style %q", styleName))
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "/* koisite theme: %s */\n", style.Name)

	if bg := style.Get(chroma.Background); bg.Background.IsSet() || bg.Colour.IsSet() {
		buf.WriteString("pre{")
		if bg.Background.IsSet() {
			fmt.Fprintf(&buf, "background-color:%s;", bg.Background)
		}
		if bg.Colour.IsSet() {
			fmt.Fprintf(&buf, "color:%s;", bg.Colour)
		}
		buf.WriteString("}\n")
	}

	for _, t := range themeTokens {
		buf.WriteString(rule(t.class, style.Get(t.token)))
	}

	return buf.Bytes(), nil
}

func rule(class string, entry chroma.StyleEntry) string {
	var decls []string
	if entry.Colour.IsSet() {
		decls = append(decls, "color:"+entry.Colour.String())
	}
	if entry.Bold == chroma.Yes {
		decls = append(decls, "font-weight:bold")
	}
	if entry.Italic == chroma.Yes {
		decls = append(decls, "font-style:italic")
	}
	if entry.Underline == chroma.Yes {
		decls = append(decls, "text-decoration:underline")
	}
	if len(decls) == 0 {
		return ""
	}
	return "." + class + "{" + strings.Join(decls, ";") + "}\n"
}
