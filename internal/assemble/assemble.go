// Package assemble splices pre-rendered snippet fragments into an HTML
// template.
//
// A template marks each insertion point with a comment of the form
//
//	<!-- SNIPPET name -->
//
// The marker syntax is case-sensitive, takes exactly one space on each side
// of the name, and has no nesting or escaping. Assemble replaces every marker
// with the fragment its name resolves to and leaves every other byte alone.
package assemble

import (
	"bytes"
	"unicode"
	"unicode/utf8"

	kerrors "github.com/conneroisu/koisite/internal/errors"
)

const (
	markerOpen  = "<!-- SNIPPET "
	markerClose = " -->"
)

// Marker is one placeholder occurrence within a template. Start and End are
// byte offsets of the whole marker span, End exclusive.
type Marker struct {
	Name  string
	Start int
	End   int
}

// Markers scans template left to right and returns every marker in order.
// The name of a marker is the shortest run between the opening and the next
// closing sequence.
func Markers(template []byte) ([]Marker, error) {
	var markers []Marker

	offset := 0
	for {
		i := bytes.Index(template[offset:], []byte(markerOpen))
		if i < 0 {
			return markers, nil
		}
		start := offset + i
		nameStart := start + len(markerOpen)

		j := bytes.Index(template[nameStart:], []byte(markerClose))
		if j < 0 {
			return nil, kerrors.NewMalformedMarker(start, "snippet marker is never closed")
		}
		nameEnd := nameStart + j
		name := template[nameStart:nameEnd]

		if err := checkName(name, start); err != nil {
			return nil, err
		}

		end := nameEnd + len(markerClose)
		markers = append(markers, Marker{Name: string(name), Start: start, End: end})
		offset = end
	}
}

func checkName(name []byte, offset int) error {
	if len(name) == 0 {
		return kerrors.NewMalformedMarker(offset, "snippet marker has an empty name")
	}
	for len(name) > 0 {
		r, size := utf8.DecodeRune(name)
		if unicode.IsSpace(r) {
			return kerrors.NewMalformedMarker(offset, "snippet name contains whitespace").
				WithContext("name", string(name))
		}
		name = name[size:]
	}
	return nil
}

// Assemble returns template with every marker replaced by the content the
// resolver returns for its name. On any error it returns nil and the error;
// nothing is partially substituted.
func Assemble(template []byte, resolver Resolver) ([]byte, error) {
	markers, err := Markers(template)
	if err != nil {
		return nil, err
	}
	if len(markers) == 0 {
		out := make([]byte, len(template))
		copy(out, template)
		return out, nil
	}

	fragments := make([][]byte, len(markers))
	size := len(template)
	for i, m := range markers {
		content, err := resolver.Resolve(m.Name)
		if err != nil {
			return nil, annotate(err, m)
		}
		fragments[i] = content
		size += len(content) - (m.End - m.Start)
	}

	var buf bytes.Buffer
	buf.Grow(size)

	last := 0
	for i, m := range markers {
		buf.Write(template[last:m.Start])
		buf.Write(fragments[i])
		last = m.End
	}
	buf.Write(template[last:])

	return buf.Bytes(), nil
}

// annotate returns a copy of a typed error with the marker offset set, when
// it does not carry one. The resolver's error is never modified.
func annotate(err error, m Marker) error {
	if e, ok := err.(*kerrors.Error); ok && e.Offset == 0 {
		cp := *e
		return cp.WithOffset(m.Start)
	}
	return err
}
