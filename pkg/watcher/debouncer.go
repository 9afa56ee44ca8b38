package watcher

import (
	"context"
	"time"

	"github.com/ritzau/kube-playground/pkg/logging"
)

// Debouncer batches rapid file system events so that an editor's
// write-rename-chmod burst triggers a single apply.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer. A batch is emitted after
// quietPeriod without events, and no later than maxWait after its first
// event.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	if maxWait < quietPeriod {
		maxWait = quietPeriod
	}
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	var (
		quiet   *time.Timer
		maxWait *time.Timer
		batch   ChangeEvent
		seen    = make(map[string]bool)
		count   int
	)

	flush := func() {
		stopTimer(quiet)
		stopTimer(maxWait)
		quiet, maxWait = nil, nil
		if count == 0 {
			return
		}

		logging.Debug("flushing accumulated events", "count", count, "paths", len(batch.Paths))
		batch.Timestamp = time.Now()
		select {
		case d.output <- batch:
		case <-ctx.Done():
		}

		batch = ChangeEvent{}
		seen = make(map[string]bool)
		count = 0
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			for _, p := range event.Paths {
				if !seen[p] {
					seen[p] = true
					batch.Paths = append(batch.Paths, p)
				}
			}
			// The last word on removal wins: a delete followed by a
			// re-create is a modification.
			batch.Removed = event.Removed
			count++

			if quiet == nil {
				quiet = time.NewTimer(d.quietPeriod)
			} else {
				quiet.Reset(d.quietPeriod)
			}
			if maxWait == nil {
				maxWait = time.NewTimer(d.maxWait)
			}

		case <-timerC(quiet):
			flush()

		case <-timerC(maxWait):
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
