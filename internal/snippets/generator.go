package snippets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/process"
	"github.com/natefinch/atomic"
)

// Report summarises one generation run.
type Report struct {
	// Fragments lists the fragment files present after the run.
	Fragments []string
}

// Generator produces the fragment directory.
type Generator interface {
	Generate(ctx context.Context) (Report, error)
}

// BuiltinGenerator highlights every SourceDir/*Ext file into
// FragmentDir/<same name>. Only the top level of SourceDir is read.
type BuiltinGenerator struct {
	SourceDir   string
	FragmentDir string
	Ext         string
}

// Generate implements Generator.
func (g *BuiltinGenerator) Generate(ctx context.Context) (Report, error) {
	var report Report

	sources, err := filepath.Glob(filepath.Join(g.SourceDir, "*"+g.Ext))
	if err != nil {
		return report, kerrors.NewIOFailure(g.SourceDir, "list snippet sources", err)
	}
	sort.Strings(sources)

	if err := os.MkdirAll(g.FragmentDir, 0o755); err != nil {
		return report, kerrors.NewIOFailure(g.FragmentDir, "create fragment directory", err)
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		info, err := os.Stat(src)
		if err != nil {
			return report, kerrors.NewIOFailure(src, "stat snippet source", err)
		}
		if info.IsDir() {
			continue
		}

		content, err := os.ReadFile(src)
		if err != nil {
			return report, kerrors.NewIOFailure(src, "read snippet source", err)
		}

		highlighted, err := Highlight(content)
		if err != nil {
			if e, ok := err.(*kerrors.Error); ok {
				e.WithPath(src)
			}
			return report, err
		}

		dst := filepath.Join(g.FragmentDir, filepath.Base(src))
		if err := atomic.WriteFile(dst, bytes.NewReader(highlighted)); err != nil {
			return report, kerrors.NewIOFailure(dst, "write fragment", err)
		}
		report.Fragments = append(report.Fragments, dst)
	}

	return report, nil
}

// CommandGenerator delegates generation to an external program, run with
// Command.Dir as its working directory. The program is expected to fill
// FragmentDir with *Ext files.
type CommandGenerator struct {
	Runner      process.Runner
	Command     process.Command
	FragmentDir string
	Ext         string
}

// Generate implements Generator.
func (g *CommandGenerator) Generate(ctx context.Context) (Report, error) {
	var report Report

	if err := os.MkdirAll(g.FragmentDir, 0o755); err != nil {
		return report, kerrors.NewIOFailure(g.FragmentDir, "create fragment directory", err)
	}

	if _, err := g.Runner.Run(ctx, g.Command); err != nil {
		return report, err
	}

	fragments, err := filepath.Glob(filepath.Join(g.FragmentDir, "*"+g.Ext))
	if err != nil {
		return report, kerrors.NewIOFailure(g.FragmentDir, "list fragments", err)
	}
	sort.Strings(fragments)
	report.Fragments = fragments

	return report, nil
}
