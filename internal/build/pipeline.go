package build

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/koisite/internal/logging"
)

// Result is the outcome of one task run.
type Result struct {
	Task     string        `json:"task"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
	Started  time.Time     `json:"started"`
	Outputs  []string      `json:"outputs,omitempty"`
}

// Failed reports whether the run returned an error.
func (r Result) Failed() bool { return r.Err != nil }

// Callback is called when a task run completes
type Callback func(result Result)

// Pipeline runs tasks with per-name serialization, metrics and logging.
// Two runs of the same task name never overlap; runs of different names
// proceed concurrently.
type Pipeline struct {
	logger  logging.Logger
	metrics *Metrics

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	last      map[string]Result
	callbacks []Callback
}

// NewPipeline creates a new pipeline
func NewPipeline(logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		logger:  logger.WithComponent("pipeline"),
		metrics: NewMetrics(),
		locks:   make(map[string]*sync.Mutex),
		last:    make(map[string]Result),
	}
}

// AddCallback registers a callback invoked after every tracked run.
func (p *Pipeline) AddCallback(callback Callback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, callback)
}

func (p *Pipeline) lockFor(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[name]
	if !ok {
		l = &sync.Mutex{}
		p.locks[name] = l
	}
	return l
}

// Run runs task, waiting for any in-flight run of the same name first.
func (p *Pipeline) Run(ctx context.Context, task Task) error {
	name := task.Name()
	l := p.lockFor(name)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	p.logger.Debug(ctx, "Starting task", "task", name)
	perf := logging.StartOperation(p.logger, name)
	started := time.Now()

	err := task.Run(ctx)

	result := Result{
		Task:     name,
		Err:      err,
		Duration: time.Since(started),
		Started:  started,
	}
	if err != nil {
		perf.EndWithError(ctx, err)
	} else {
		if o, ok := task.(Outputter); ok {
			result.Outputs = o.Outputs()
		}
		perf.End(ctx, "task", name, "outputs", len(result.Outputs))
	}

	p.metrics.Record(result)

	p.mu.Lock()
	p.last[name] = result
	callbacks := make([]Callback, len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(result)
	}

	return err
}

// Wrap returns a Task that runs task through the pipeline.
func (p *Pipeline) Wrap(task Task) Task {
	return &tracked{pipeline: p, task: task}
}

type tracked struct {
	pipeline *Pipeline
	task     Task
}

func (t *tracked) Name() string { return t.task.Name() }

func (t *tracked) Run(ctx context.Context) error { return t.pipeline.Run(ctx, t.task) }

func (t *tracked) Outputs() []string {
	if o, ok := t.task.(Outputter); ok {
		return o.Outputs()
	}
	return nil
}

// Metrics returns a snapshot of the run counters.
func (p *Pipeline) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// Last returns the most recent result for every task that has run.
func (p *Pipeline) Last() map[string]Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]Result, len(p.last))
	for name, r := range p.last {
		out[name] = r
	}
	return out
}

// Failures returns the tasks whose most recent run failed, sorted by name.
func (p *Pipeline) Failures() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	var failed []Result
	for _, r := range p.last {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Task < failed[j].Task })
	return failed
}
