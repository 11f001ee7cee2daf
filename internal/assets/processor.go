package assets

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/conneroisu/koisite/internal/logging"
	"github.com/natefinch/atomic"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
)

// Fingerprinter hashes file contents.
type Fingerprinter interface {
	File(path string) (uint32, error)
}

// Report lists what a Process call did, as output paths.
type Report struct {
	Written []string
	Skipped []string
}

// Processor mirrors an asset tree into the output directory, optimizing
// each file on the way. Files whose content is unchanged since the last
// successful write are skipped while their output still exists.
type Processor struct {
	Optimizer    *Optimizer
	Fingerprints Fingerprinter
	Workers      int
	Logger       logging.Logger

	mu      sync.Mutex
	written map[string]uint32
}

// NewProcessor returns a Processor running at most workers optimizations at
// once.
func NewProcessor(optimizer *Optimizer, fingerprints Fingerprinter, workers int, logger logging.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Processor{
		Optimizer:    optimizer,
		Fingerprints: fingerprints,
		Workers:      workers,
		Logger:       logger.WithComponent("assets"),
		written:      make(map[string]uint32),
	}
}

// Process copies src/** to dst/**. A missing src is not an error.
func (p *Processor) Process(ctx context.Context, src, dst string) (Report, error) {
	var report Report

	files, err := listFiles(src)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	errs := make([]error, len(files))
	wp := pool.New().WithMaxGoroutines(p.Workers)

	for i, rel := range files {
		wp.Go(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}

			out := filepath.Join(dst, rel)
			wrote, err := p.processFile(filepath.Join(src, rel), out)
			if err != nil {
				errs[i] = err
				return
			}

			mu.Lock()
			if wrote {
				report.Written = append(report.Written, out)
			} else {
				report.Skipped = append(report.Skipped, out)
			}
			mu.Unlock()
		})
	}
	wp.Wait()

	p.Logger.Debug(ctx, "Processed assets",
		"written", len(report.Written),
		"skipped", len(report.Skipped))

	return report, multierr.Combine(errs...)
}

func (p *Processor) processFile(in, out string) (bool, error) {
	var sum uint32
	if p.Fingerprints != nil {
		var err error
		sum, err = p.Fingerprints.File(in)
		if err != nil {
			return false, kerrors.NewIOFailure(in, "fingerprint asset", err)
		}
		if p.unchanged(out, sum) {
			return false, nil
		}
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return false, kerrors.NewIOFailure(in, "read asset", err)
	}

	optimized, err := p.Optimizer.Optimize(in, data)
	if err != nil {
		return false, kerrors.NewIOFailure(in, "optimize asset", err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return false, kerrors.NewIOFailure(out, "create asset directory", err)
	}
	if err := atomic.WriteFile(out, bytes.NewReader(optimized)); err != nil {
		return false, kerrors.NewIOFailure(out, "write asset", err)
	}

	if p.Fingerprints != nil {
		p.mu.Lock()
		p.written[out] = sum
		p.mu.Unlock()
	}
	return true, nil
}

func (p *Processor) unchanged(out string, sum uint32) bool {
	p.mu.Lock()
	prev, ok := p.written[out]
	p.mu.Unlock()
	if !ok || prev != sum {
		return false
	}
	_, err := os.Stat(out)
	return err == nil
}

// Forget drops the recorded fingerprints so the next run rewrites every file.
func (p *Processor) Forget() {
	p.mu.Lock()
	p.written = make(map[string]uint32)
	p.mu.Unlock()
}

// listFiles returns the regular files below root, relative to root, in
// lexical order.
func listFiles(root string) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, kerrors.NewIOFailure(root, "walk assets", err)
	}
	return files, nil
}
