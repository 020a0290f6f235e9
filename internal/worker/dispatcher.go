// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worker runs download batches in the background. The HTTP layer
// enqueues a job and answers at once with a ticket; workers drain the job
// channel, one batch per session at a time.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/pubmed-retriever/internal/acquire"
	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/internal/store"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

var (
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrBusy is returned when the job queue is full.
	ErrBusy = errors.New("too many queued downloads")
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64

	// keepDone bounds how many finished jobs Status remembers.
	keepDone = 256
)

// State is the lifecycle of a job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
)

// Runner executes a batch. *acquire.Engine satisfies it.
type Runner interface {
	RunBatch(ctx context.Context, sessionID string, identifiers []string, opts acquire.BatchOptions) ([]types.AcquisitionResult, error)
}

// Publisher receives progress events. *progress.Hub satisfies it.
type Publisher interface {
	Publish(sessionID string, e types.Event)
}

// Records is the part of the record store a job updates.
type Records interface {
	store.QueueStore
	store.SessionStore
}

// Observer is told when jobs start and finish.
type Observer interface {
	JobStarted()
	JobFinished(elapsed time.Duration)
}

// Status reports a job's progress.
type Status struct {
	Ticket    string `json:"ticket"`
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Completed int    `json:"completed"`
	Error     string `json:"error,omitempty"`
}

type job struct {
	ticket    string
	sessionID string
	items     []types.QueueItem
}

// Dispatcher owns the worker pool.
type Dispatcher struct {
	runner  Runner
	records Records
	pub     Publisher
	log     *zap.Logger
	workers int

	// Observer is optional.
	Observer Observer

	jobs   chan job
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.Mutex
	stopped  bool
	statuses map[string]*Status
	done     []string
	sessions map[string]*sync.Mutex
}

// New returns a Dispatcher with workers goroutines. Call Start before
// Enqueue.
func New(runner Runner, records Records, pub Publisher, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		runner:   runner,
		records:  records,
		pub:      pub,
		log:      logging.OrNop(log),
		workers:  workers,
		jobs:     make(chan job, DefaultQueueSize),
		statuses: make(map[string]*Status),
		sessions: make(map[string]*sync.Mutex),
	}
}

// Start launches the workers. They run until Stop or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	d.group = g
	for range d.workers {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	d.log.Info("download workers started", zap.Int("workers", d.workers))
}

// Stop cancels running batches and waits for the workers to exit.
// Queued jobs that never started stay queued.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.group.Wait()
	}
	d.log.Info("download workers stopped")
}

// Enqueue schedules items for sessionID and returns the job ticket.
func (d *Dispatcher) Enqueue(sessionID string, items []types.QueueItem) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return "", ErrStopped
	}

	j := job{ticket: ulid.Make().String(), sessionID: sessionID, items: items}
	select {
	case d.jobs <- j:
	default:
		return "", ErrBusy
	}
	d.statuses[j.ticket] = &Status{Ticket: j.ticket, SessionID: sessionID, State: StateQueued, Total: len(items)}
	d.log.Info("download job queued", zap.String("ticket", j.ticket), zap.String("session", sessionID), zap.Int("items", len(items)))
	return j.ticket, nil
}

// Status returns a snapshot of the job with ticket.
func (d *Dispatcher) Status(ticket string) (Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.statuses[ticket]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.run(ctx, j)
		}
	}
}

func (d *Dispatcher) sessionLock(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.sessions[id]
	if !ok {
		m = &sync.Mutex{}
		d.sessions[id] = m
	}
	return m
}

func (d *Dispatcher) update(ticket string, fn func(*Status)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.statuses[ticket]; ok {
		fn(s)
	}
}

func (d *Dispatcher) finish(ticket string, completed int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.statuses[ticket]; ok {
		s.State = StateDone
		s.Completed = completed
		if err != nil {
			s.Error = err.Error()
		}
	}
	d.done = append(d.done, ticket)
	if len(d.done) > keepDone {
		delete(d.statuses, d.done[0])
		d.done = d.done[1:]
	}
}

// run processes one job under the session's lock.
func (d *Dispatcher) run(ctx context.Context, j job) {
	lock := d.sessionLock(j.sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if d.Observer != nil {
		d.Observer.JobStarted()
		defer func() { d.Observer.JobFinished(time.Since(start)) }()
	}

	log := d.log.With(zap.String("ticket", j.ticket), zap.String("session", j.sessionID))
	d.update(j.ticket, func(s *Status) { s.State = StateRunning })

	// Bookkeeping outlives cancellation so the last result is recorded.
	bg := context.WithoutCancel(ctx)

	j.items = d.stillPending(bg, log, j.items)
	d.update(j.ticket, func(s *Status) { s.Total = len(j.items) })
	ids := make([]string, len(j.items))
	for i, it := range j.items {
		ids[i] = it.PMID
	}

	completed := 0
	opts := acquire.BatchOptions{
		OnProgress: func(p types.Progress) {
			d.setStatus(bg, log, j.items[p.Current-1].ID, types.QueueUpdate{Status: ptr(types.StatusDownloading)})
			d.pub.Publish(j.sessionID, types.ProgressEvent(p))
		},
		OnResult: func(p types.Progress, r types.AcquisitionResult) {
			u := types.QueueUpdate{Status: ptr(types.StatusFailed), ErrorMessage: ptr(r.Error)}
			if r.Success {
				completed++
				u = types.QueueUpdate{Status: ptr(types.StatusCompleted), FilePath: ptr(r.FilePath)}
				if r.Error != "" {
					u.ErrorMessage = ptr(r.Error)
				}
			}
			d.setStatus(bg, log, j.items[p.Current-1].ID, u)
			d.pub.Publish(j.sessionID, types.ItemCompleteEvent(r))
			d.update(j.ticket, func(s *Status) {
				s.Processed = p.Current
				s.Completed = completed
			})
		},
	}

	_, err := d.runner.RunBatch(ctx, j.sessionID, ids, opts)
	switch {
	case errors.Is(err, acquire.ErrNotAuthenticated):
		for _, it := range j.items {
			d.setStatus(bg, log, it.ID, types.QueueUpdate{
				Status:       ptr(types.StatusFailed),
				ErrorMessage: ptr(acquire.MsgNotAuthenticated),
			})
		}
		log.Warn("download job rejected", zap.Error(err))
	case err != nil:
		log.Info("download job interrupted", zap.Error(err))
	default:
		log.Info("download job finished", zap.Int("completed", completed), zap.Int("total", len(j.items)), zap.Duration("elapsed", time.Since(start)))
	}

	total := len(j.items)
	if _, serr := d.records.UpdateSession(bg, j.sessionID, types.SessionUpdate{
		TotalItems:     &total,
		CompletedItems: &completed,
	}); serr != nil && !errors.Is(serr, store.ErrNotFound) {
		log.Warn("updating download session", zap.Error(serr))
	}

	d.pub.Publish(j.sessionID, types.DownloadCompleteEvent(completed, total))
	d.finish(j.ticket, completed, err)
}

// stillPending drops items that were removed from the queue or picked up by
// an earlier job while this one waited.
func (d *Dispatcher) stillPending(ctx context.Context, log *zap.Logger, items []types.QueueItem) []types.QueueItem {
	queue, err := d.records.ListQueue(ctx)
	if err != nil {
		log.Warn("listing queue", zap.Error(err))
		return items
	}
	pending := make(map[int64]bool, len(queue))
	for _, it := range queue {
		if it.Status == types.StatusPending {
			pending[it.ID] = true
		}
	}
	out := items[:0:0]
	for _, it := range items {
		if pending[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

func (d *Dispatcher) setStatus(ctx context.Context, log *zap.Logger, id int64, u types.QueueUpdate) {
	if _, err := d.records.UpdateQueueItem(ctx, id, u); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("updating queue item", zap.Int64("id", id), zap.Error(err))
	}
}

func ptr[T any](v T) *T { return &v }
