// Package scheduler owns the dataset lifecycle state machine. A search
// runs synchronously up to a wall-clock budget; work still unfinished at
// the deadline transitions the dataset to background and the caller is
// released with the dataset id while a bounded worker pool finishes the
// job. Callers observe the lifecycle as an ordered event stream.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/domain"
	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
	"github.com/stellarlab/lcsearch/internal/domain/query"
	"github.com/stellarlab/lcsearch/internal/metrics"
	asm "github.com/stellarlab/lcsearch/internal/usecase/dataset"
)

// DefaultSyncBudget is the synchronous execution window.
const DefaultSyncBudget = 30 * time.Second

// Store is the consumer interface over the dataset repository.
type Store interface {
	GetOrCreate(ctx context.Context, fingerprint string, visibility query.Visibility, owner string) (domds.Dataset, bool, error)
	Get(ctx context.Context, id string) (domds.Dataset, error)
	Transition(ctx context.Context, id string, to domds.Status, message string) error
	SetRowCount(ctx context.Context, id string, n int64) error
	SetArtifacts(ctx context.Context, id, csvPath, snapshotPath, bundlePath string) error
	Touch(ctx context.Context, id string) error
}

// Executor runs a canonical query to completion.
type Executor interface {
	Execute(ctx context.Context, q query.CanonicalQuery) (domds.Result, error)
}

// Assembler materializes dataset artifacts.
type Assembler interface {
	Assemble(ctx context.Context, ds domds.Dataset, res domds.Result, cols []string) asm.Outcome
}

// Scheduler admits queries and drives their datasets to a terminal
// state.
type Scheduler struct {
	store    Store
	executor Executor
	asm      Assembler
	pool     *ants.Pool
	budget   time.Duration
	bcast    *broadcaster
	logger   *zap.Logger
}

// New creates a scheduler with a bounded worker pool.
func New(store Store, executor Executor, assembler Assembler, workers int, logger *zap.Logger) (*Scheduler, error) {
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Scheduler{
		store:    store,
		executor: executor,
		asm:      assembler,
		pool:     pool,
		budget:   DefaultSyncBudget,
		bcast:    newBroadcaster(),
		logger:   logger,
	}, nil
}

// WithBudget overrides the synchronous execution window.
func (s *Scheduler) WithBudget(d time.Duration) *Scheduler {
	if d > 0 {
		s.budget = d
	}
	return s
}

// Close releases the worker pool.
func (s *Scheduler) Close() { s.pool.Release() }

// Submission is one caller's view of a dataset lifecycle: the dataset id
// plus the ordered event stream. The channel closes after the terminal
// event; a caller abandoning it never cancels the underlying work.
type Submission struct {
	SetID  string
	Events <-chan Event
}

// Submit admits a canonical query. A fingerprint cache hit attaches to
// the existing dataset instead of re-executing the search; private
// queries always execute fresh.
func (s *Scheduler) Submit(ctx context.Context, q query.CanonicalQuery, owner string) (*Submission, error) {
	var fingerprint string
	if q.Visibility().Shared() {
		fingerprint = q.Fingerprint()
	}

	ds, created, err := s.store.GetOrCreate(ctx, fingerprint, q.Visibility(), owner)
	if err != nil {
		return nil, fmt.Errorf("admit query: %w", err)
	}

	if !created {
		metrics.DatasetCacheTotal.WithLabelValues("hit").Inc()
		return s.attach(ctx, ds)
	}
	metrics.DatasetCacheTotal.WithLabelValues("miss").Inc()

	s.bcast.open(ds.ID)
	out, _ := s.forward(ds.ID, nil)

	s.bcast.publish(ds.ID, newEvent(WireQueued, "query accepted", resultFields(ds.ID, nil)))

	// detach from the request: a disconnecting client must not cancel
	// the search or background assembly
	workCtx := context.WithoutCancel(ctx)
	if err := s.pool.Submit(func() { s.run(workCtx, ds, q) }); err != nil {
		s.bcast.publish(ds.ID, newEvent(WireFailed, "scheduler unavailable: "+err.Error(),
			resultFields(ds.ID, nil)))
		s.bcast.finish(ds.ID)
		return nil, fmt.Errorf("submit to pool: %w", err)
	}

	return &Submission{SetID: ds.ID, Events: out}, nil
}

// attach joins a caller to an existing dataset's stream. Terminal
// datasets produce a single authoritative event.
func (s *Scheduler) attach(ctx context.Context, ds domds.Dataset) (*Submission, error) {
	if ds.Status.Terminal() {
		if err := s.store.Touch(ctx, ds.ID); err != nil {
			s.logger.Warn("Failed to touch dataset", zap.String("set", ds.ID), zap.Error(err))
		}
		out := make(chan Event, 1)
		fields := resultFields(ds.ID, map[string]any{"nobjects": ds.NMatched})
		out <- newEvent(wireStatus(ds.Status), "retrieved from existing dataset", fields)
		close(out)
		return &Submission{SetID: ds.ID, Events: out}, nil
	}

	// synthetic catch-up line so the attacher sees its current status
	// immediately; rank filtering in forward keeps the order monotonic
	first := newEvent(wireStatus(ds.Status), "attached to running query", resultFields(ds.ID, nil))
	out, ok := s.forward(ds.ID, &first)
	if !ok {
		// in-flight in the store but not streaming here (e.g. restart);
		// report the current status and end the stream
		done := make(chan Event, 1)
		done <- newEvent(wireStatus(ds.Status), "query in progress, poll the dataset", resultFields(ds.ID, nil))
		close(done)
		return &Submission{SetID: ds.ID, Events: done}, nil
	}
	return &Submission{SetID: ds.ID, Events: out}, nil
}

// forward subscribes to the broadcast stream and relays events whose
// status rank never regresses. A non-nil first event is delivered before
// anything from the stream and sets the floor.
func (s *Scheduler) forward(setID string, first *Event) (chan Event, bool) {
	in, ok := s.bcast.subscribe(setID)
	if !ok {
		return nil, false
	}
	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		last := -1
		if first != nil {
			last = statusRank(first.Status)
			out <- *first
		}
		for ev := range in {
			r := statusRank(ev.Status)
			if r < last {
				continue
			}
			last = r
			select {
			case out <- ev:
			default:
			}
		}
	}()
	return out, true
}

// run drives one freshly created dataset to a terminal state.
func (s *Scheduler) run(ctx context.Context, ds domds.Dataset, q query.CanonicalQuery) {
	setID := ds.ID
	s.transition(ctx, setID, domds.StatusRunning, "query running")
	s.bcast.publish(setID, newEvent(WireRunning, "query running", resultFields(setID, nil)))

	var mu sync.Mutex
	backgrounded, finished := false, false

	timer := time.AfterFunc(s.budget, func() {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		backgrounded = true
		metrics.BackgroundJobs.Inc()
		s.transition(ctx, setID, domds.StatusBackground,
			"query exceeded the synchronous window, continuing in background")
		s.bcast.publish(setID, newEvent(WireBackground,
			"query taking long, continuing in background; poll or re-subscribe",
			resultFields(setID, nil)))
	})
	defer timer.Stop()

	start := time.Now()
	res, err := s.executor.Execute(ctx, q)
	metrics.SearchDuration.WithLabelValues(string(q.Kind())).Observe(time.Since(start).Seconds())

	if err != nil {
		s.fail(ctx, setID, q, err, &mu, &finished, &backgrounded, timer)
		return
	}

	if err := s.store.SetRowCount(ctx, setID, res.NMatched); err != nil {
		s.logger.Warn("Failed to record row count", zap.String("set", setID), zap.Error(err))
	}

	ds.NMatched = res.NMatched
	outcome := s.asm.Assemble(ctx, ds, res, q.Columns())
	if err := s.store.SetArtifacts(ctx, setID, outcome.CSVPath, outcome.SnapshotPath, outcome.BundlePath); err != nil {
		s.logger.Warn("Failed to record artifacts", zap.String("set", setID), zap.Error(err))
	}

	mu.Lock()
	finished = true
	timer.Stop()
	wasBackground := backgrounded
	mu.Unlock()

	messages := append(append([]string(nil), res.Warnings...), outcome.Messages...)
	message := "query complete"
	if len(messages) > 0 {
		message = strings.Join(messages, "; ")
	}

	s.transition(ctx, setID, domds.StatusComplete, message)
	metrics.SearchesTotal.WithLabelValues(string(q.Kind()), "ok").Inc()

	fields := resultFields(setID, map[string]any{
		"nobjects": res.NMatched,
		"url":      "/api/sets/" + setID,
	})
	s.bcast.publish(setID, newEvent(WireOK, message, fields))
	s.bcast.finish(setID)

	if wasBackground {
		metrics.BackgroundJobs.Dec()
	}
}

func (s *Scheduler) fail(
	ctx context.Context,
	setID string,
	q query.CanonicalQuery,
	err error,
	mu *sync.Mutex,
	finished, backgrounded *bool,
	timer *time.Timer,
) {
	mu.Lock()
	*finished = true
	timer.Stop()
	wasBackground := *backgrounded
	mu.Unlock()

	fields := resultFields(setID, nil)
	outcome := "error"
	if errors.Is(err, domain.ErrNoMatch) {
		// a zero-row query is a failed dataset, not a transport failure
		fields["nobjects"] = int64(0)
		outcome = "nomatch"
	}
	metrics.SearchesTotal.WithLabelValues(string(q.Kind()), outcome).Inc()

	// executor message surfaced verbatim; artifact pointers stay null
	s.transition(ctx, setID, domds.StatusFailed, err.Error())
	s.bcast.publish(setID, newEvent(WireFailed, err.Error(), fields))
	s.bcast.finish(setID)

	if wasBackground {
		metrics.BackgroundJobs.Dec()
	}
}

func (s *Scheduler) transition(ctx context.Context, setID string, to domds.Status, message string) {
	if err := s.store.Transition(ctx, setID, to, message); err != nil {
		s.logger.Error("Dataset transition failed",
			zap.String("set", setID), zap.String("to", string(to)), zap.Error(err))
	}
}

func resultFields(setID string, extra map[string]any) map[string]any {
	fields := map[string]any{"setid": setID}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}
