// Package scheduler runs the periodic transmit jobs of spec.md §4.I:
// one ticking goroutine per job, sending a fixed frame on a channel at
// a fixed interval until cancelled or the channel disconnects.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/canscope/engine/frame"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sender is the minimal channel capability a job needs: send a frame,
// and report whether it is still connected. *channel.Channel satisfies
// this without the scheduler importing the channel package's lock
// discipline directly.
type Sender interface {
	Send(f frame.Frame) error
	Connected() bool
}

type job struct {
	id     string
	cancel context.CancelFunc
}

// Scheduler owns the registry of running periodic-transmit jobs,
// guarded by its own lock per spec.md §5.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*job
	log  *logrus.Entry
}

func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{jobs: make(map[string]*job), log: log}
}

// Start launches a ticker at interval sending f on sender, returning a
// fresh job id. The loop ends when cancelled via Stop or when sender
// reports disconnected at a tick boundary.
func (s *Scheduler) Start(sender Sender, f frame.Frame, interval time.Duration) string {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	s.mu.Lock()
	s.jobs[id] = &job{id: id, cancel: cancel}
	s.mu.Unlock()

	go s.run(ctx, id, sender, f, interval)
	return id
}

func (s *Scheduler) run(ctx context.Context, id string, sender Sender, f frame.Frame, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.remove(id)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sender.Connected() {
				return
			}
			if err := sender.Send(f); err != nil {
				s.log.WithError(err).WithField("job", id).Warn("scheduler: periodic send failed")
			}
		}
	}
}

func (s *Scheduler) remove(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Stop signals cancellation for id. Unknown ids are a no-op, logged
// only, per spec.md §4.I.
func (s *Scheduler) Stop(id string) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		s.log.WithField("job", id).Debug("scheduler: stop requested for unknown job")
		return
	}
	j.cancel()
}

// Active lists the currently running job ids.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		out = append(out, id)
	}
	return out
}
