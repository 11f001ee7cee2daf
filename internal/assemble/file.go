package assemble

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/natefinch/atomic"
)

// PostProcessor transforms assembled output before it is written, e.g. a
// minifier.
type PostProcessor func(out []byte) ([]byte, error)

// FileOptions describe one assembly pass over files on disk.
type FileOptions struct {
	Template string
	Output   string
	Resolver Resolver
	// Post, when set, runs on the assembled bytes before they are written.
	Post PostProcessor
}

// FileResult reports what a pass produced.
type FileResult struct {
	Markers int
	Bytes   int
}

// AssembleFile reads the template, assembles it and atomically replaces
// Output with the result. On failure Output is left as it was.
func AssembleFile(ctx context.Context, opts FileOptions) (FileResult, error) {
	var result FileResult

	if err := ctx.Err(); err != nil {
		return result, err
	}

	template, err := os.ReadFile(opts.Template)
	if err != nil {
		return result, kerrors.NewIOFailure(opts.Template, "read template", err)
	}

	markers, err := Markers(template)
	if err != nil {
		return result, withTemplate(err, opts.Template)
	}

	resolver := NewCachingResolver(opts.Resolver)
	out, err := Assemble(template, resolver)
	if err != nil {
		return result, withTemplate(err, opts.Template)
	}

	if opts.Post != nil {
		if out, err = opts.Post(out); err != nil {
			return result, err
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return result, kerrors.NewIOFailure(opts.Output, "create output directory", err)
	}
	if err := atomic.WriteFile(opts.Output, bytes.NewReader(out)); err != nil {
		return result, kerrors.NewIOFailure(opts.Output, "write output", err)
	}

	result.Markers = len(markers)
	result.Bytes = len(out)
	return result, nil
}

// withTemplate returns a copy of a marker error with the template path set,
// since marker errors are raised without one.
func withTemplate(err error, template string) error {
	if e, ok := err.(*kerrors.Error); ok && e.Path == "" {
		cp := *e
		return cp.WithPath(template)
	}
	return err
}
