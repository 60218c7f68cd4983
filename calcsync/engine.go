// Package calcsync keeps the calculation history local-first. Saves that cannot
// reach the backend are kept as pending records in a bounded persisted history
// and migrated by RetrySync once the backend is reachable again.
package calcsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-dashboard-client/adapters"
	"github.com/jrsteele09/go-dashboard-client/api"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/queue"
	"github.com/jrsteele09/go-dashboard-client/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// StorageKey is where the combined history is persisted.
const StorageKey = "dashboard.calculations.history"

const DefaultCapacity = 50

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Remote is the backend surface the engine needs. *api.EmissionEndpoints
// satisfies it.
type Remote interface {
	CreateCalculation(ctx context.Context, create api.CalculationCreate) (adapters.Calculation, error)
	History(ctx context.Context) ([]adapters.Calculation, error)
	DeleteCalculation(ctx context.Context, id string) error
}

// SaveInput is a calculation to record.
type SaveInput struct {
	Company string
	Input   map[string]any
	Result  map[string]any
	Name    *string
}

// Outcome reports how a save ended. Pending means the record was kept locally
// and will be synced later; Cause says why.
type Outcome struct {
	Record  Record
	Pending bool
	Cause   error
}

// SyncReport summarises one RetrySync run.
type SyncReport struct {
	Migrated  int
	Remaining int
}

type Engine struct {
	remote  Remote
	history *queue.Queue[Record]

	// mu serialises read-modify-write of the history across network calls
	mu    sync.Mutex
	group singleflight.Group
}

// Option defines a function type to modify the Engine instance.
type Option func(*engineOptions)

type engineOptions struct {
	capacity int
}

// WithCapacity bounds the combined history. It defaults to DefaultCapacity.
func WithCapacity(capacity int) Option {
	return func(o *engineOptions) {
		o.capacity = capacity
	}
}

func New(remote Remote, store storage.Store, options ...Option) *Engine {
	opts := engineOptions{capacity: DefaultCapacity}
	for _, opt := range options {
		opt(&opts)
	}
	return &Engine{
		remote:  remote,
		history: queue.New(store, StorageKey, opts.capacity, Record.key),
	}
}

// Save creates the record remotely. When that fails for any reason the record
// is kept locally as pending instead; the failure is reported in the outcome,
// never as an error.
func (e *Engine) Save(ctx context.Context, in SaveInput) Outcome {
	created, err := e.remote.CreateCalculation(ctx, api.CalculationCreate{
		Company: in.Company,
		Input:   nonNil(in.Input),
		Result:  nonNil(in.Result),
		Name:    in.Name,
	})
	if err == nil && created.ID != nil {
		rec := fromCalculation(created)
		e.push(rec)
		return Outcome{Record: rec}
	}
	if err == nil {
		err = errors.Wrap(interrors.ErrMalformedPayload, "created calculation carried no id")
	}

	rec := Record{
		LocalID:   uuid.NewString(),
		Company:   in.Company,
		Input:     nonNil(in.Input),
		Result:    nonNil(in.Result),
		Timestamp: NowTimeFunc().UTC(),
		Name:      in.Name,
	}
	log.Warn().Err(err).Str("local_id", rec.LocalID).Msg("Calculation saved locally, will sync later")
	e.push(rec)
	return Outcome{Record: rec, Pending: true, Cause: err}
}

// RetrySync tries to create every pending record remotely, then adopts the
// canonical remote list as the synced part of the history. Records that still
// fail stay pending, untouched. Overlapping calls share one run.
func (e *Engine) RetrySync(ctx context.Context) (SyncReport, error) {
	v, err, _ := e.group.Do("retry", func() (any, error) {
		return e.retrySync(ctx)
	})
	report, _ := v.(SyncReport)
	return report, err
}

func (e *Engine) retrySync(ctx context.Context) (SyncReport, error) {
	migrated := make(map[string]Record)
	for _, rec := range e.Pending() {
		ts := rec.Timestamp
		created, err := e.remote.CreateCalculation(ctx, api.CalculationCreate{
			Company:   rec.Company,
			Input:     rec.Input,
			Result:    rec.Result,
			Name:      rec.Name,
			Timestamp: &ts,
		})
		if err != nil || created.ID == nil {
			log.Debug().Err(err).Str("local_id", rec.LocalID).Msg("Pending calculation still not synced")
			continue
		}
		migrated[rec.LocalID] = fromCalculation(created)
	}

	remote, fetchErr := e.remote.History(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	current := e.history.Items()

	var next []Record
	if fetchErr == nil {
		next = make([]Record, 0, len(remote)+len(current))
		for _, c := range remote {
			next = append(next, fromCalculation(c))
		}
		for _, rec := range current {
			if _, done := migrated[rec.LocalID]; rec.Pending() && !done {
				next = append(next, rec)
			}
		}
	} else {
		// without the canonical list, swap migrated records in place
		next = make([]Record, 0, len(current))
		for _, rec := range current {
			if server, done := migrated[rec.LocalID]; rec.Pending() && done {
				rec = server
			}
			next = append(next, rec)
		}
	}
	sortHistory(next)
	e.history.Replace(next)

	report := SyncReport{Migrated: len(migrated), Remaining: countPending(e.history.Items())}
	log.Info().Int("migrated", report.Migrated).Int("remaining", report.Remaining).Msg("Calculation sync finished")
	if fetchErr != nil {
		return report, errors.Wrap(fetchErr, "[calcsync RetrySync] fetch canonical history")
	}
	return report, nil
}

// Delete removes rec. Synced records are deleted remotely and the history
// refreshed; pending records are dropped locally by their original timestamp.
func (e *Engine) Delete(ctx context.Context, rec Record) error {
	if rec.Pending() {
		e.mu.Lock()
		removed := e.history.RemoveFunc(func(r Record) bool {
			return r.Pending() && r.Timestamp.Equal(rec.Timestamp)
		})
		e.mu.Unlock()
		if removed == 0 {
			return errors.Wrapf(interrors.ErrRecordNotFound, "[calcsync Delete] no pending record at %s", rec.Timestamp.Format(time.RFC3339Nano))
		}
		return nil
	}
	if err := e.remote.DeleteCalculation(ctx, *rec.ID); err != nil {
		return err
	}
	return e.Refresh(ctx)
}

// Refresh adopts the canonical remote list, keeping pending records.
func (e *Engine) Refresh(ctx context.Context) error {
	remote, err := e.remote.History(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]Record, 0, len(remote))
	for _, c := range remote {
		next = append(next, fromCalculation(c))
	}
	next = append(next, pendingOf(e.history.Items())...)
	sortHistory(next)
	e.history.Replace(next)
	return nil
}

// History returns the combined history, newest first.
func (e *Engine) History() []Record {
	records := e.history.Items()
	sortHistory(records)
	return records
}

// Pending returns the records not yet confirmed by the backend, newest first.
func (e *Engine) Pending() []Record {
	return pendingOf(e.History())
}

func (e *Engine) push(rec Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if evicted := e.history.Push(rec); len(evicted) > 0 {
		log.Info().Int("evicted", len(evicted)).Msg("Calculation history over capacity, dropped oldest entries")
	}
}

func pendingOf(records []Record) []Record {
	pending := []Record{}
	for _, rec := range records {
		if rec.Pending() {
			pending = append(pending, rec)
		}
	}
	return pending
}

func countPending(records []Record) int {
	return len(pendingOf(records))
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
