// Package playground is the canvas session behind the UI: the only place
// where the graph is mutated. Every operation runs to completion under the
// session lock, never panics outward, and reports an Outcome. Committed
// changes are published as graph diffs, and deployments whose pod count may
// have drifted are handed to a debounced reconciliation scheduler.
package playground

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/kube-playground/pkg/advisor"
	"github.com/ritzau/kube-playground/pkg/lens"
	"github.com/ritzau/kube-playground/pkg/logging"
	"github.com/ritzau/kube-playground/pkg/manifest"
	"github.com/ritzau/kube-playground/pkg/metrics"
	"github.com/ritzau/kube-playground/pkg/model"
	"github.com/ritzau/kube-playground/pkg/pubsub"
	"github.com/ritzau/kube-playground/pkg/reconcile"
	"github.com/ritzau/kube-playground/pkg/store"
)

// Options wires a session to its collaborators. Every field is optional.
type Options struct {
	// ReconcileDelay is the quiet period before a deployment is
	// reconciled. Zero reconciles synchronously inside the operation call.
	ReconcileDelay   time.Duration
	ReconcileMaxWait time.Duration

	Publisher pubsub.Publisher
	Metrics   *metrics.Metrics
	Store     store.Store
}

// Session holds one canvas.
type Session struct {
	id        string
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	store     store.Store
	scheduler *reconcile.Scheduler

	mu    sync.Mutex
	graph *model.Graph
	last  *lens.Snapshot
	// manifestAdvice holds the warnings of the last applied manifest.
	manifestAdvice []advisor.Advice
}

// change describes a committed mutation.
type change struct {
	message  string
	id       string
	warnings []string
	// reconcile lists deployments whose pods may no longer match replicas.
	reconcile []string
	// full publishes the whole canvas instead of a diff.
	full bool
	// quiet skips the notification, for high-frequency edits like drags.
	quiet bool

	replaceAdvice  bool
	manifestAdvice []advisor.Advice
}

// New creates an empty session.
func New(opts Options) *Session {
	s := &Session{
		id:        uuid.NewString(),
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		store:     opts.Store,
		graph:     model.NewGraph(),
	}
	s.scheduler = reconcile.NewScheduler(opts.ReconcileDelay, opts.ReconcileMaxWait, s.reconcileDeployment)
	s.last = lens.Capture(s.graph)
	s.metrics.SetGraph(s.graph)
	logging.Info("playground session created", "session", s.id, "reconcileDelay", opts.ReconcileDelay)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Flush runs pending reconciliations now.
func (s *Session) Flush() { s.scheduler.Flush() }

// PendingReconciliations returns the number of deployments waiting for a
// reconciliation pass.
func (s *Session) PendingReconciliations() int { return s.scheduler.Pending() }

// Close cancels pending reconciliations.
func (s *Session) Close() {
	s.scheduler.Stop()
}

// commit runs fn against a copy of the canvas and swaps the copy in only
// when fn succeeds and the result is consistent. A failing or panicking fn
// leaves the canvas exactly as it was.
func (s *Session) commit(ctx context.Context, op string, fn func(g *model.Graph) (*change, error)) (Outcome, *change) {
	ctx = logging.WithSessionID(ctx, s.id)
	start := time.Now()

	ch, err := s.locked(ctx, op, fn)
	var out Outcome
	if err != nil {
		logging.WarnContext(ctx, "operation failed", "operation", op, "error", err)
		out = failure(err)
	} else {
		logging.DebugContext(ctx, "operation applied", "operation", op, "elapsed", time.Since(start))
		out = success(ch.message)
		out.ID = ch.id
		out.Warnings = ch.warnings
	}
	s.metrics.ObserveOperation(op, out.OK, time.Since(start))
	return out, ch
}

func (s *Session) locked(ctx context.Context, op string, fn func(g *model.Graph) (*change, error)) (ch *change, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorContext(ctx, "operation panicked", "operation", op, "panic", r, "stack", string(debug.Stack()))
			ch, err = nil, fmt.Errorf("%w: %s: %v", ErrInternal, op, r)
		}
	}()

	work := s.graph.Clone()
	ch, err = fn(work)
	if err != nil {
		return nil, err
	}
	if err := work.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s left the canvas inconsistent: %w", ErrInternal, op, err)
	}

	s.graph = work
	if ch.replaceAdvice {
		s.manifestAdvice = ch.manifestAdvice
	}

	var diff *lens.GraphDiff
	if ch.full {
		diff = lens.ComputeDiff(nil, work)
	} else {
		diff = lens.ComputeDiff(s.last, work)
	}
	s.last = lens.Capture(work)
	s.metrics.SetGraph(work)
	s.publishDiff(ctx, diff)
	return ch, nil
}

// mutate commits fn, announces the outcome and schedules reconciliation.
func (s *Session) mutate(ctx context.Context, op string, fn func(g *model.Graph) (*change, error)) Outcome {
	out, ch := s.commit(ctx, op, fn)
	if ch == nil || !ch.quiet {
		s.notify(op, out)
	}
	if out.OK && len(ch.reconcile) > 0 {
		// Outside the lock: a synchronous scheduler re-enters commit.
		s.scheduler.Schedule(ch.reconcile...)
	}
	return out
}

// run executes an operation that does not change the canvas.
func (s *Session) run(ctx context.Context, op string, fn func() (string, error)) (out Outcome) {
	ctx = logging.WithSessionID(ctx, s.id)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorContext(ctx, "operation panicked", "operation", op, "panic", r, "stack", string(debug.Stack()))
			out = failure(fmt.Errorf("%w: %s: %v", ErrInternal, op, r))
		}
		s.metrics.ObserveOperation(op, out.OK, time.Since(start))
		s.notify(op, out)
	}()

	msg, err := fn()
	if err != nil {
		logging.WarnContext(ctx, "operation failed", "operation", op, "error", err)
		return failure(err)
	}
	return success(msg)
}

func (s *Session) reconcileDeployment(id string) {
	var report *reconcile.Report
	out, _ := s.commit(context.Background(), "reconcile", func(g *model.Graph) (*change, error) {
		r, err := reconcile.Reconcile(g, id)
		if err != nil {
			return nil, err
		}
		report = r
		return &change{}, nil
	})
	s.metrics.ObserveReconcile(report, out.Err)

	switch {
	case !out.OK:
		s.notifyEvent(pubsub.EventReconcileFailed, pubsub.Notification{
			Operation: "reconcile",
			Message:   out.Message,
		})
	case report.Changed():
		s.notifyEvent(pubsub.EventReconciled, pubsub.Notification{
			Operation: "reconcile",
			OK:        true,
			Message:   fmt.Sprintf("%s scaled from %d to %d pods", id, report.Current, report.Desired),
		})
	}
}

func (s *Session) publishDiff(ctx context.Context, diff *lens.GraphDiff) {
	if diff.Empty() {
		return
	}
	logging.TraceContext(ctx, "publishing graph change", "full", diff.FullGraph,
		"added", len(diff.AddedNodes), "removed", len(diff.RemovedNodes), "modified", len(diff.ModifiedNodes))
	if err := pubsub.PublishDiff(s.publisher, diff); err != nil {
		logging.DebugContext(ctx, "failed to publish graph change", "error", err)
	}
}

func (s *Session) notify(op string, out Outcome) {
	s.notifyEvent(pubsub.EventOutcome, pubsub.Notification{
		Operation: op,
		OK:        out.OK,
		Message:   out.Message,
		Warnings:  out.Warnings,
	})
}

func (s *Session) notifyEvent(eventType string, n pubsub.Notification) {
	if err := pubsub.Notify(s.publisher, eventType, n); err != nil {
		logging.Debug("failed to publish notification", "type", eventType, "operation", n.Operation, "error", err)
	}
}

func (s *Session) read(fn func(g *model.Graph)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.graph)
}

// Graph returns a copy of the canvas.
func (s *Session) Graph() *model.Graph {
	var c *model.Graph
	s.read(func(g *model.Graph) { c = g.Clone() })
	return c
}

// Hash identifies the current canvas state.
func (s *Session) Hash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last.Hash
}

// FocusView is the part of the canvas around a set of focused nodes.
type FocusView struct {
	Graph     *model.Graph   `json:"graph"`
	Distances map[string]int `json:"distances"`
}

// Focus returns the nodes within radius hops of the focused ones, with the
// distance of every canvas node to the focus. A negative radius keeps all
// connected nodes.
func (s *Session) Focus(ids []string, radius int) *FocusView {
	v := &FocusView{}
	s.read(func(g *model.Graph) {
		v.Graph = lens.Neighborhood(g, ids, radius)
		v.Distances = lens.ComputeDistances(g, ids)
	})
	return v
}

// GenerateYAML renders the canvas as a multi-document manifest.
func (s *Session) GenerateYAML(ctx context.Context) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorContext(ctx, "manifest generation panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: generate: %v", ErrInternal, r)
		}
	}()
	s.read(func(g *model.Graph) { text, err = manifest.Generate(g) })
	return text, err
}

// Advice returns the warnings of the last applied manifest followed by
// advice about the current canvas.
func (s *Session) Advice() []advisor.Advice {
	var out []advisor.Advice
	s.read(func(g *model.Graph) {
		out = append(out, s.manifestAdvice...)
		out = append(out, advisor.Check(g)...)
	})
	return out
}
