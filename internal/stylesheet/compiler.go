// Package stylesheet compiles the site stylesheet to plain CSS.
package stylesheet

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/process"
)

// Compiler turns a stylesheet into CSS. Sass sources go through an external
// compiler; plain .css files are read as they are.
type Compiler struct {
	Runner  process.Runner
	Command string
	Args    []string
	// Root is the working directory of the compiler process.
	Root string
}

// NeedsCompiler reports whether path is a Sass source.
func NeedsCompiler(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".scss", ".sass":
		return true
	}
	return false
}

// Compile returns the CSS for the stylesheet at path.
func (c *Compiler) Compile(ctx context.Context, path string) ([]byte, error) {
	if !NeedsCompiler(path) {
		css, err := os.ReadFile(path)
		if err != nil {
			return nil, kerrors.NewIOFailure(path, "read stylesheet", err)
		}
		return css, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, kerrors.NewIOFailure(path, "stat stylesheet", err)
	}

	// The process runs in Root, so a relative path would resolve twice.
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, kerrors.NewIOFailure(path, "resolve stylesheet path", err)
	}

	args := make([]string, 0, len(c.Args)+1)
	args = append(args, c.Args...)
	args = append(args, abs)

	result, err := c.Runner.Run(ctx, process.Command{
		Name: c.Command,
		Args: args,
		Dir:  c.Root,
	})
	if err != nil {
		return nil, err
	}

	return result.Stdout, nil
}
