// Package process runs external tools on behalf of the pipeline.
//
// Commands always carry their working directory explicitly; nothing in
// koisite changes the process-wide current directory.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/kballard/go-shellquote"
)

// Command describes one process invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin io.Reader
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Result holds the captured output of a finished process.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec. Cancelling ctx kills the process.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Name == "" {
		return Result{}, kerrors.NewCommandFailed("", nil, errors.New("empty command"))
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, kerrors.NewCommandFailed(cmd.String(), result.Stderr, err).
			WithContext("dir", cmd.Dir)
	}

	return result, nil
}

// ParseCommandLine splits a shell-style command line into a Command that
// runs in dir. Quoting follows POSIX shell rules; no shell is involved in
// running the result.
func ParseCommandLine(line, dir string) (Command, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(words) == 0 {
		return Command{}, errors.New("empty command")
	}
	for _, w := range words {
		if strings.ContainsAny(w, "\x00") {
			return Command{}, fmt.Errorf("command %q contains a NUL byte", line)
		}
	}

	return Command{Name: words[0], Args: words[1:], Dir: dir}, nil
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

// Run calls f(ctx, cmd).
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}
