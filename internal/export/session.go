package export

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/kikiluvv/splice/internal/timeline"
)

// Snapshotter is anything that can freeze its timeline state.
type Snapshotter interface {
	Snapshot() timeline.Snapshot
}

// Session runs exports of one editing session in the background, at most
// one at a time.
type Session struct {
	exporter *Exporter

	mu      sync.Mutex
	current *Job
}

// NewSession creates a session that exports through exporter.
func NewSession(exporter *Exporter) *Session {
	return &Session{exporter: exporter}
}

// Job is one running or finished export.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}

	result *Result
	err    error
}

// Start snapshots src and begins exporting it. Edits made to src after
// Start returns are not part of the export. While a previous job is still
// running Start fails with ErrExportInProgress.
func (s *Session) Start(ctx context.Context, src Snapshotter, aspect Aspect, dst io.Writer, onProgress ProgressFunc) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		select {
		case <-s.current.done:
		default:
			return nil, ErrExportInProgress
		}
	}

	snap := src.Snapshot()
	ctx, cancel := context.WithCancel(ctx)
	job := &Job{cancel: cancel, done: make(chan struct{})}
	s.current = job

	go func() {
		defer close(job.done)
		defer cancel()
		res, err := s.exporter.Export(ctx, snap, aspect, dst, onProgress)
		if err != nil && errors.Is(err, context.Canceled) {
			err = ErrCancelled
		}
		job.result, job.err = res, err
	}()
	return job, nil
}

// Running reports whether an export is in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	select {
	case <-s.current.done:
		return false
	default:
		return true
	}
}

// Cancel stops the job. A cancelled job ends with ErrCancelled and cannot
// be resumed.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its outcome.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	return j.result, j.err
}
