// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking. A name can only be running once; starting it again while it runs
// returns ErrJobRunning.
//
//	jm := jobmgr.NewManager(logger)
//	err := jm.StartAsync("health", func(ctx context.Context) error {
//	    return srv.Run(ctx)
//	})
//	...
//	_ = jm.Shutdown(ctx)
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrJobRunning    = errors.New("job is already running")
	ErrJobNotRunning = errors.New("job is not running")
)

// Job is a running unit of work.
type Job struct {
	Name   string
	Cancel context.CancelFunc
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
	log  zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
		log:  log,
	}
}

// StartAsync runs runner in its own goroutine and returns immediately. The
// job is forgotten once runner returns.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{Name: name, Cancel: cancel}
	m.jobs[name] = job
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		m.log.Debug().Str("job", name).Msg("job running")

		if err := runner(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error().Err(err).Str("job", name).Msg("job failed")
		} else {
			m.log.Debug().Str("job", name).Msg("job done")
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, name)
	}
	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// Running reports whether a job with name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the active job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

// Status returns a one-line summary such as "Running jobs: health, idle:g/c".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(active, ", ")
}

// Shutdown cancels every job and waits for them to return or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for name, job := range m.jobs {
		job.Cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
