// Package minify wraps the HTML, CSS and SVG minifiers used by the build.
package minify

import (
	"fmt"
	"io"

	"github.com/dchest/cssmin"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	MediaHTML = "text/html"
	MediaCSS  = "text/css"
	MediaSVG  = "image/svg+xml"
)

// Minifier minifies documents by media type. It is safe for concurrent use.
type Minifier struct {
	m *minify.M
}

// New returns a Minifier with the html, css and svg minifiers registered.
//
// HTML keeps document tags, end tags and attribute quotes so the output stays
// diffable against the template; whitespace inside <pre> is preserved.
func New() *Minifier {
	m := minify.New()
	m.Add(MediaHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc(MediaCSS, minifyCSS)
	m.AddFunc(MediaSVG, svg.Minify)
	return &Minifier{m: m}
}

func minifyCSS(_ *minify.M, w io.Writer, r io.Reader, _ map[string]string) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = w.Write(cssmin.Minify(src))
	return err
}

// Bytes minifies b as mediatype.
func (mf *Minifier) Bytes(mediatype string, b []byte) ([]byte, error) {
	out, err := mf.m.Bytes(mediatype, b)
	if err != nil {
		return nil, fmt.Errorf("minify %s: %w", mediatype, err)
	}
	return out, nil
}

// HTML minifies an HTML document, including inline styles.
func (mf *Minifier) HTML(b []byte) ([]byte, error) {
	return mf.Bytes(MediaHTML, b)
}

// CSS minifies a stylesheet.
func (mf *Minifier) CSS(b []byte) ([]byte, error) {
	return mf.Bytes(MediaCSS, b)
}

// SVG minifies an SVG image.
func (mf *Minifier) SVG(b []byte) ([]byte, error) {
	return mf.Bytes(MediaSVG, b)
}
