package network

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// TaskFunc is a long-running function supervised until its context is cancelled.
// Returning nil means the task finished and is not restarted.
type TaskFunc func(ctx context.Context) error

// RestartPolicy defines how a failed task is restarted
type RestartPolicy struct {
	MaxRestarts     int
	RestartDelay    time.Duration
	BackoffFactor   float64
	MaxBackoffDelay time.Duration
	OnFailure       func(err error, restarts int)
}

// DefaultRestartPolicy returns a default restart policy
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxRestarts:     5,
		RestartDelay:    1 * time.Second,
		BackoffFactor:   2.0,
		MaxBackoffDelay: 30 * time.Second,
	}
}

// Backoff returns the delay before the given restart (1-based).
func (p RestartPolicy) Backoff(restart int) time.Duration {
	delay := p.RestartDelay
	for i := 1; i < restart; i++ {
		delay = time.Duration(float64(delay) * p.BackoffFactor)
		if p.MaxBackoffDelay > 0 && delay > p.MaxBackoffDelay {
			return p.MaxBackoffDelay
		}
	}
	return delay
}

type supervisedTask struct {
	name   string
	fn     TaskFunc
	policy RestartPolicy

	mu        sync.Mutex
	running   bool
	restarts  int
	lastError error
}

// TaskStatus is a point-in-time view of a supervised task.
type TaskStatus struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

// Supervisor runs the agent's background tasks (HTTP server, report scheduler)
// and restarts them with exponential backoff when they fail.
type Supervisor struct {
	mu      sync.Mutex
	tasks   map[string]*supervisedTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	stopTimeout time.Duration
}

func NewSupervisor(ctx context.Context) *Supervisor {
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Supervisor{
		tasks:       make(map[string]*supervisedTask),
		ctx:         sctx,
		cancel:      cancel,
		stopTimeout: 10 * time.Second,
	}
}

// Register adds a task. It must be called before Start.
func (s *Supervisor) Register(name string, fn TaskFunc, policy RestartPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor already started, cannot register %s", name)
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}
	s.tasks[name] = &supervisedTask{name: name, fn: fn, policy: policy}
	return nil
}

// Start launches every registered task.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("supervisor already running")
	}
	s.started = true

	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.run(t)
	}
	slog.Info("Supervisor started", "component", "supervisor", "tasks", len(s.tasks))
	return nil
}

func (s *Supervisor) run(t *supervisedTask) {
	defer s.wg.Done()
	t.setRunning(true)
	defer t.setRunning(false)

	for {
		err := t.fn(s.ctx)

		if s.ctx.Err() != nil {
			slog.Info("Task stopped", "component", "supervisor", "task", t.name)
			return
		}
		if err == nil {
			slog.Info("Task completed", "component", "supervisor", "task", t.name)
			return
		}

		restarts := t.recordFailure(err)
		slog.Error("Task failed",
			"component", "supervisor",
			"task", t.name,
			"restart", restarts,
			"max_restarts", t.policy.MaxRestarts,
			"error", err,
		)
		if t.policy.OnFailure != nil {
			t.policy.OnFailure(err, restarts)
		}
		if restarts > t.policy.MaxRestarts {
			slog.Error("Task exceeded max restarts, giving up", "component", "supervisor", "task", t.name)
			return
		}

		select {
		case <-time.After(t.policy.Backoff(restarts)):
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop cancels all tasks and waits for them, bounded by a timeout.
func (s *Supervisor) Stop() {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Supervisor stopped", "component", "supervisor")
	case <-time.After(s.stopTimeout):
		slog.Warn("Timeout waiting for tasks to stop", "component", "supervisor")
	}
}

// Status returns the state of every task sorted by name.
func (s *Supervisor) Status() []TaskStatus {
	s.mu.Lock()
	tasks := make([]*supervisedTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsHealthy is false when a task is not running or has used more than half of its
// restart budget.
func (s *Supervisor) IsHealthy() bool {
	for _, st := range s.Status() {
		if !st.Running {
			return false
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		t.mu.Lock()
		over := t.restarts > t.policy.MaxRestarts/2
		t.mu.Unlock()
		if over {
			return false
		}
	}
	return true
}

func (t *supervisedTask) setRunning(v bool) {
	t.mu.Lock()
	t.running = v
	t.mu.Unlock()
}

func (t *supervisedTask) recordFailure(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = err
	t.restarts++
	return t.restarts
}

func (t *supervisedTask) status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := TaskStatus{Name: t.name, Running: t.running, Restarts: t.restarts}
	if t.lastError != nil {
		st.LastError = t.lastError.Error()
	}
	return st
}
