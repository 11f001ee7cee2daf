package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Location is a source position recovered from an external tool's stderr.
type Location struct {
	File    string
	Line    int
	Column  int
	Message string
}

// String formats the location as file:line:col, dropping unknown parts.
func (l Location) String() string {
	s := l.File
	if l.Line > 0 {
		s += ":" + strconv.Itoa(l.Line)
		if l.Column > 0 {
			s += ":" + strconv.Itoa(l.Column)
		}
	}
	if l.Message != "" {
		if s != "" {
			s += ": "
		}
		s += l.Message
	}
	return s
}

type outputPattern struct {
	regex *regexp.Regexp
	parse func(m []string) Location
}

var (
	// dart-sass prints "Error: <msg>" followed by a frame line such as
	// "  style.scss 3:13  root stylesheet".
	sassMessage = regexp.MustCompile(`^Error: (.+)$`)
	sassFrame   = regexp.MustCompile(`^\s+(\S+\.s[ac]ss) (\d+):(\d+)\s+.*$`)

	outputPatterns = []outputPattern{
		{
			// file:line:col: message (gcc, go, most linters)
			regex: regexp.MustCompile(`^(\S+?):(\d+):(\d+): (.+)$`),
			parse: func(m []string) Location {
				return Location{File: m[1], Line: atoi(m[2]), Column: atoi(m[3]), Message: m[4]}
			},
		},
		{
			// File "highlight.py", line 12, in main
			regex: regexp.MustCompile(`^\s*File "(.+?)", line (\d+)`),
			parse: func(m []string) Location {
				return Location{File: m[1], Line: atoi(m[2])}
			},
		},
	}
)

// ParseToolOutput extracts source locations from the stderr of a stylesheet
// compiler or highlighter. Lines that match no known shape are ignored.
func ParseToolOutput(output string) []Location {
	var (
		locations []Location
		pending   string
	)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")

		if m := sassMessage.FindStringSubmatch(line); m != nil {
			pending = m[1]
			continue
		}
		if m := sassFrame.FindStringSubmatch(line); m != nil {
			locations = append(locations, Location{
				File: m[1], Line: atoi(m[2]), Column: atoi(m[3]), Message: pending,
			})
			pending = ""
			continue
		}
		for _, p := range outputPatterns {
			if m := p.regex.FindStringSubmatch(line); m != nil {
				locations = append(locations, p.parse(m))
				break
			}
		}
	}

	if pending != "" {
		locations = append(locations, Location{Message: pending})
	}

	return locations
}

// Locate returns the positions err points at: the path and offset recorded
// on the error itself, followed by anything parsed from captured stderr.
func Locate(err error) []Location {
	var locations []Location

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		var e *Error
		if !errors.As(cur, &e) {
			break
		}
		if e.Path != "" {
			loc := Location{File: e.Path}
			if e.Offset > 0 {
				loc.Message = fmt.Sprintf("byte offset %d", e.Offset)
			}
			locations = append(locations, loc)
			break
		}
		cur = e
	}

	if stderr := Stderr(err); stderr != "" {
		locations = append(locations, ParseToolOutput(stderr)...)
	}

	return locations
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
