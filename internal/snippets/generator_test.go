package snippets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBuiltinGenerator(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "snippets")
	out := filepath.Join(src, "out")

	writeFile(t, filepath.Join(src, "b.koi"), "°1let° y")
	writeFile(t, filepath.Join(src, "a.koi"), "°3print°(°21°)")
	writeFile(t, filepath.Join(src, "notes.txt"), "°1ignored°")
	writeFile(t, filepath.Join(src, "nested", "c.koi"), "°1nested°")

	gen := &BuiltinGenerator{SourceDir: src, FragmentDir: out, Ext: ".koi"}
	report, err := gen.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(out, "a.koi"),
		filepath.Join(out, "b.koi"),
	}, report.Fragments)

	a, err := os.ReadFile(filepath.Join(out, "a.koi"))
	require.NoError(t, err)
	assert.Equal(t, `<span class="fn">print</span>(<span class="str">1</span>)`, string(a))

	_, err = os.Stat(filepath.Join(out, "c.koi"))
	assert.True(t, os.IsNotExist(err), "nested sources are not generated")
	_, err = os.Stat(filepath.Join(out, "notes.koi"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuiltinGeneratorUnknownClass(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bad.koi"), "°9x°")

	gen := &BuiltinGenerator{SourceDir: root, FragmentDir: filepath.Join(root, "out"), Ext: ".koi"}
	_, err := gen.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrUnknownHighlightClass)
	assert.Contains(t, err.Error(), "bad.koi")
}

func TestBuiltinGeneratorCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.koi"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &BuiltinGenerator{SourceDir: root, FragmentDir: filepath.Join(root, "out"), Ext: ".koi"}
	_, err := gen.Generate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandGenerator(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")

	var got process.Command
	runner := process.RunnerFunc(func(_ context.Context, cmd process.Command) (process.Result, error) {
		got = cmd
		writeFile(t, filepath.Join(out, "hello.koi"), "<span>hi</span>")
		return process.Result{}, nil
	})

	gen := &CommandGenerator{
		Runner:      runner,
		Command:     process.Command{Name: "python", Args: []string{"highlighter.py"}, Dir: root},
		FragmentDir: out,
		Ext:         ".koi",
	}
	report, err := gen.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, root, got.Dir)
	assert.Equal(t, []string{filepath.Join(out, "hello.koi")}, report.Fragments)
}

func TestCommandGeneratorFailure(t *testing.T) {
	root := t.TempDir()
	runner := process.RunnerFunc(func(context.Context, process.Command) (process.Result, error) {
		return process.Result{}, kerrors.NewCommandFailed("python highlighter.py", []byte("Traceback"), assert.AnError)
	})

	gen := &CommandGenerator{
		Runner:      runner,
		Command:     process.Command{Name: "python", Dir: root},
		FragmentDir: filepath.Join(root, "out"),
		Ext:         ".koi",
	}
	_, err := gen.Generate(context.Background())
	assert.ErrorIs(t, err, kerrors.ErrCommandFailed)
	assert.Equal(t, "Traceback", kerrors.Stderr(err))
}
