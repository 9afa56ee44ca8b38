package reconcile

import (
	"sync"
	"time"

	"github.com/ritzau/kube-playground/pkg/logging"
)

// Scheduler defers reconciliation requests per deployment so that rapid
// edits coalesce into one pass. A request runs after the deployment has been
// quiet for the quiet period, and no later than maxWait after the first
// request of a burst. A superseded pass is never cancelled; it simply runs
// against whatever the graph holds by then.
type Scheduler struct {
	quietPeriod time.Duration
	maxWait     time.Duration
	run         func(deploymentID string)

	mu      sync.Mutex
	pending map[string]*pendingRun
	stopped bool
}

type pendingRun struct {
	quiet *time.Timer
	max   *time.Timer
}

// NewScheduler creates a scheduler calling run for each due deployment.
// A zero quiet period makes Schedule run synchronously.
func NewScheduler(quietPeriod, maxWait time.Duration, run func(deploymentID string)) *Scheduler {
	if maxWait < quietPeriod {
		maxWait = quietPeriod
	}
	return &Scheduler{
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
		run:         run,
		pending:     make(map[string]*pendingRun),
	}
}

// Schedule requests a reconciliation of the given deployments.
func (s *Scheduler) Schedule(ids ...string) {
	for _, id := range ids {
		s.schedule(id)
	}
}

func (s *Scheduler) schedule(id string) {
	if s.quietPeriod <= 0 {
		s.run(id)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if p, ok := s.pending[id]; ok {
		p.quiet.Reset(s.quietPeriod)
		logging.Trace("Reconciliation postponed", "deployment", id)
		return
	}

	p := &pendingRun{}
	p.quiet = time.AfterFunc(s.quietPeriod, func() { s.fire(id, p) })
	p.max = time.AfterFunc(s.maxWait, func() { s.fire(id, p) })
	s.pending[id] = p
	logging.Trace("Reconciliation scheduled", "deployment", id, "delay", s.quietPeriod)
}

// fire runs the pass for id unless p has already been consumed.
func (s *Scheduler) fire(id string, p *pendingRun) {
	s.mu.Lock()
	if s.pending[id] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	p.quiet.Stop()
	p.max.Stop()
	s.mu.Unlock()

	s.run(id)
}

// Pending returns the number of deployments waiting for a pass.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush runs every pending pass immediately on the calling goroutine.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	due := make([]string, 0, len(s.pending))
	for id, p := range s.pending {
		p.quiet.Stop()
		p.max.Stop()
		due = append(due, id)
	}
	s.pending = make(map[string]*pendingRun)
	s.mu.Unlock()

	for _, id := range due {
		s.run(id)
	}
}

// Stop cancels pending passes. Later Schedule calls are ignored unless the
// scheduler is synchronous.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		p.quiet.Stop()
		p.max.Stop()
	}
	s.pending = make(map[string]*pendingRun)
	s.stopped = true
}
