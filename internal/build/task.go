// Package build composes the site build out of named tasks. Leaves run
// through a Pipeline, which serializes runs of the same name and keeps the
// last result and run counters for each task.
package build

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
)

// Task is a named unit of build work.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Outputter is implemented by tasks that report the files their last
// successful run wrote.
type Outputter interface {
	Outputs() []string
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTask returns a Task named name that calls fn.
func NewTask(name string, fn func(ctx context.Context) error) *TaskFunc {
	return &TaskFunc{name: name, fn: fn}
}

func (t *TaskFunc) Name() string                  { return t.name }
func (t *TaskFunc) Run(ctx context.Context) error { return t.fn(ctx) }

type series struct {
	name  string
	tasks []Task
}

// Series runs tasks in order and stops at the first failure. Later tasks
// never start once an earlier one has failed.
func Series(name string, tasks ...Task) Task {
	return &series{name: name, tasks: tasks}
}

func (s *series) Name() string { return s.name }

func (s *series) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

type parallel struct {
	name    string
	workers int
	tasks   []Task
}

// Parallel runs tasks concurrently, at most workers at a time, and waits
// for all of them. Every failure is reported, combined in task order.
func Parallel(name string, workers int, tasks ...Task) Task {
	if workers < 1 {
		workers = len(tasks)
	}
	return &parallel{name: name, workers: workers, tasks: tasks}
}

func (p *parallel) Name() string { return p.name }

func (p *parallel) Run(ctx context.Context) error {
	if len(p.tasks) == 0 {
		return nil
	}

	errs := make([]error, len(p.tasks))
	wp := pool.New().WithMaxGoroutines(p.workers)
	for i, t := range p.tasks {
		wp.Go(func() {
			errs[i] = t.Run(ctx)
		})
	}
	wp.Wait()

	return multierr.Combine(errs...)
}
