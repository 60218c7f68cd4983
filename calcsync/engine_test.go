package calcsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-client/adapters"
	"github.com/jrsteele09/go-dashboard-client/api"
	"github.com/jrsteele09/go-dashboard-client/calcsync"
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/internal/fakeapi"
	"github.com/jrsteele09/go-dashboard-client/internal/utils"
	"github.com/jrsteele09/go-dashboard-client/storage/memstore"
	"github.com/stretchr/testify/require"
)

const externalToken = "external-token"

type fixture struct {
	backend *fakeapi.Server
	store   *memstore.Store
	engine  *calcsync.Engine
}

func setup(t *testing.T, opts ...calcsync.Option) *fixture {
	t.Helper()
	backend := fakeapi.New()
	t.Cleanup(backend.Close)
	backend.AddIdentity(externalToken, fakeapi.Identity{ID: "user-1", Email: "jane@example.com"})

	_, err := api.New(backend.URL, nil).Auth.Verify(context.Background(), externalToken)
	require.NoError(t, err)
	client := api.New(backend.URL, staticToken(fakeapi.AccessTokenFor(externalToken)))

	store := memstore.New()
	return &fixture{
		backend: backend,
		store:   store,
		engine:  calcsync.New(client.Emissions, store, opts...),
	}
}

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

// tickingClock makes every local timestamp one second later than the last.
func tickingClock(t *testing.T) {
	t.Helper()
	prev := calcsync.NowTimeFunc
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var n atomic.Int64
	calcsync.NowTimeFunc = func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
	t.Cleanup(func() { calcsync.NowTimeFunc = prev })
}

func input(company string) calcsync.SaveInput {
	return calcsync.SaveInput{
		Company: company,
		Input:   map[string]any{"company": company, "scope1": 12.5},
		Result:  map[string]any{"total_emissions": 1.25},
	}
}

func TestSave_Success(t *testing.T) {
	f := setup(t)

	outcome := f.engine.Save(context.Background(), input("Acme"))
	require.False(t, outcome.Pending)
	require.NoError(t, outcome.Cause)
	require.NotNil(t, outcome.Record.ID)

	history := f.engine.History()
	require.Len(t, history, 1)
	require.Equal(t, *outcome.Record.ID, *history[0].ID)
	require.Empty(t, f.engine.Pending())
	require.Len(t, f.backend.Calculations("user-1"), 1)
}

func TestSave_FailureThenRetryMigrates(t *testing.T) {
	tickingClock(t)
	f := setup(t)
	f.backend.FailNextCreates(1)

	outcome := f.engine.Save(context.Background(), input("Acme"))
	require.True(t, outcome.Pending)
	require.Error(t, outcome.Cause)
	require.Equal(t, 503, api.StatusCode(outcome.Cause))
	require.Nil(t, outcome.Record.ID)
	require.NotEmpty(t, outcome.Record.LocalID)

	pending := f.engine.Pending()
	require.Len(t, pending, 1)
	require.Nil(t, pending[0].ID)

	// the pending record is persisted
	data, err := f.store.Get(calcsync.StorageKey)
	require.NoError(t, err)
	var persisted []calcsync.Record
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 1)
	require.Equal(t, outcome.Record.LocalID, persisted[0].LocalID)

	report, err := f.engine.RetrySync(context.Background())
	require.NoError(t, err)
	require.Equal(t, calcsync.SyncReport{Migrated: 1, Remaining: 0}, report)
	require.Empty(t, f.engine.Pending())

	history := f.engine.History()
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ID)
	require.True(t, outcome.Record.Timestamp.Equal(history[0].Timestamp))

	remote := f.backend.Calculations("user-1")
	require.Len(t, remote, 1)
	require.Equal(t, *history[0].ID, remote[0].ID)

	// a second run has nothing left to migrate
	report, err = f.engine.RetrySync(context.Background())
	require.NoError(t, err)
	require.Equal(t, calcsync.SyncReport{}, report)
	require.Len(t, f.backend.Calculations("user-1"), 1)
}

func TestRetrySync_PartialFailureKeepsRemainder(t *testing.T) {
	tickingClock(t)
	f := setup(t)
	f.backend.SetCreatesDown(true)
	older := f.engine.Save(context.Background(), input("Older"))
	newer := f.engine.Save(context.Background(), input("Newer"))
	f.backend.SetCreatesDown(false)

	// pending records are retried newest first, so the newer one fails
	f.backend.FailNextCreates(1)
	report, err := f.engine.RetrySync(context.Background())
	require.NoError(t, err)
	require.Equal(t, calcsync.SyncReport{Migrated: 1, Remaining: 1}, report)

	pending := f.engine.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, newer.Record.LocalID, pending[0].LocalID)

	history := f.engine.History()
	require.Len(t, history, 2)
	require.Equal(t, "Newer", history[0].Company)
	require.True(t, history[0].Pending())
	require.Equal(t, "Older", history[1].Company)
	require.False(t, history[1].Pending())
	require.True(t, older.Record.Timestamp.Equal(history[1].Timestamp))
}

func TestSave_HistoryCapacity(t *testing.T) {
	tickingClock(t)
	f := setup(t)
	f.backend.SetCreatesDown(true)

	for i := 1; i <= 55; i++ {
		f.engine.Save(context.Background(), input(fmt.Sprintf("Company %d", i)))
	}

	history := f.engine.History()
	require.Len(t, history, calcsync.DefaultCapacity)
	require.Equal(t, "Company 55", history[0].Company)
	require.Equal(t, "Company 6", history[49].Company)

	var persisted []calcsync.Record
	data, err := f.store.Get(calcsync.StorageKey)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, calcsync.DefaultCapacity)

	// a fresh engine over the same storage sees the same history
	reopened := calcsync.New(nil, f.store)
	require.Len(t, reopened.History(), calcsync.DefaultCapacity)
}

func TestSave_CustomCapacity(t *testing.T) {
	f := setup(t, calcsync.WithCapacity(2))
	for i := 0; i < 3; i++ {
		f.engine.Save(context.Background(), input("Acme"))
	}
	require.Len(t, f.engine.History(), 2)
}

func TestDelete(t *testing.T) {
	tickingClock(t)

	t.Run("pending record by timestamp", func(t *testing.T) {
		f := setup(t)
		f.backend.SetCreatesDown(true)
		keep := f.engine.Save(context.Background(), input("Keep"))
		drop := f.engine.Save(context.Background(), input("Drop"))

		// only the timestamp identifies a pending record
		require.NoError(t, f.engine.Delete(context.Background(), calcsync.Record{Timestamp: drop.Record.Timestamp}))
		history := f.engine.History()
		require.Len(t, history, 1)
		require.Equal(t, keep.Record.LocalID, history[0].LocalID)

		err := f.engine.Delete(context.Background(), drop.Record)
		require.ErrorIs(t, err, interrors.ErrRecordNotFound)
	})

	t.Run("synced record remotely", func(t *testing.T) {
		f := setup(t)
		saved := f.engine.Save(context.Background(), input("Acme"))
		require.False(t, saved.Pending)

		require.NoError(t, f.engine.Delete(context.Background(), saved.Record))
		require.Empty(t, f.engine.History())
		require.Empty(t, f.backend.Calculations("user-1"))

		err := f.engine.Delete(context.Background(), saved.Record)
		require.Equal(t, 404, api.StatusCode(err))
	})
}

func TestRefresh_KeepsPending(t *testing.T) {
	tickingClock(t)
	f := setup(t)
	synced := f.engine.Save(context.Background(), input("Synced"))
	f.backend.FailNextCreates(1)
	pending := f.engine.Save(context.Background(), input("Pending"))

	require.NoError(t, f.engine.Refresh(context.Background()))
	history := f.engine.History()
	require.Len(t, history, 2)

	ids := map[string]bool{}
	for _, rec := range history {
		if rec.Pending() {
			ids[rec.LocalID] = true
		} else {
			ids[*rec.ID] = true
		}
	}
	require.True(t, ids[*synced.Record.ID])
	require.True(t, ids[pending.Record.LocalID])
}

// stubRemote is a scriptable backend.
type stubRemote struct {
	mu          sync.Mutex
	creates     int
	historyErr  error
	history     []adapters.Calculation
	historyHits atomic.Int64
	entered     chan struct{}
	release     chan struct{}
}

func (s *stubRemote) CreateCalculation(ctx context.Context, create api.CalculationCreate) (adapters.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	ts := time.Now().UTC()
	if create.Timestamp != nil {
		ts = *create.Timestamp
	}
	return adapters.Calculation{
		ID:        utils.Ptr(fmt.Sprintf("srv-%d", s.creates)),
		Company:   create.Company,
		Input:     create.Input,
		Result:    create.Result,
		Timestamp: ts,
	}, nil
}

func (s *stubRemote) History(ctx context.Context) ([]adapters.Calculation, error) {
	s.historyHits.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.history, s.historyErr
}

func (s *stubRemote) DeleteCalculation(ctx context.Context, id string) error {
	return nil
}

type failingCreates struct {
	*stubRemote
}

func (failingCreates) CreateCalculation(ctx context.Context, create api.CalculationCreate) (adapters.Calculation, error) {
	return adapters.Calculation{}, errors.New("offline")
}

func TestRetrySync_FetchFailureSwapsInPlace(t *testing.T) {
	tickingClock(t)
	store := memstore.New()

	offline := calcsync.New(failingCreates{&stubRemote{}}, store)
	saved := offline.Save(context.Background(), input("Acme"))
	require.True(t, saved.Pending)

	remote := &stubRemote{historyErr: errors.New("list unavailable")}
	engine := calcsync.New(remote, store)
	report, err := engine.RetrySync(context.Background())
	require.ErrorContains(t, err, "list unavailable")
	require.Equal(t, calcsync.SyncReport{Migrated: 1, Remaining: 0}, report)

	history := engine.History()
	require.Len(t, history, 1)
	require.Equal(t, "srv-1", *history[0].ID)
	require.True(t, saved.Record.Timestamp.Equal(history[0].Timestamp))
}

func TestDelete_PendingNotRestoredByConcurrentSync(t *testing.T) {
	tickingClock(t)
	engine := calcsync.New(failingCreates{&stubRemote{}}, memstore.New())

	for round := 0; round < 50; round++ {
		saved := engine.Save(context.Background(), input(fmt.Sprintf("Round %d", round)))
		require.True(t, saved.Pending)

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = engine.RetrySync(context.Background())
				}
			}
		}()

		require.NoError(t, engine.Delete(context.Background(), saved.Record))
		close(stop)
		<-done

		for _, rec := range engine.History() {
			require.NotEqual(t, saved.Record.LocalID, rec.LocalID, "round %d: deleted record came back", round)
		}
	}
}

func TestRetrySync_OverlappingCallsShareOneRun(t *testing.T) {
	remote := &stubRemote{entered: make(chan struct{}), release: make(chan struct{})}
	engine := calcsync.New(remote, memstore.New())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = engine.RetrySync(context.Background())
	}()
	<-remote.entered

	go func() {
		defer wg.Done()
		_, _ = engine.RetrySync(context.Background())
	}()
	// give the second call time to join the in-flight run
	time.Sleep(50 * time.Millisecond)
	close(remote.release)
	wg.Wait()

	require.Equal(t, int64(1), remote.historyHits.Load())
}

func TestHistory_TiesPutPendingFirst(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	prev := calcsync.NowTimeFunc
	calcsync.NowTimeFunc = func() time.Time { return at }
	t.Cleanup(func() { calcsync.NowTimeFunc = prev })

	remote := &stubRemote{history: []adapters.Calculation{
		{ID: utils.Ptr("b"), Company: "Synced B", Timestamp: at},
		{ID: utils.Ptr("a"), Company: "Synced A", Timestamp: at},
		{ID: utils.Ptr("old"), Company: "Older", Timestamp: at.Add(-time.Hour)},
	}}
	store := memstore.New()
	calcsync.New(failingCreates{remote}, store).Save(context.Background(), input("Pending"))

	engine := calcsync.New(remote, store)
	require.NoError(t, engine.Refresh(context.Background()))

	var companies []string
	for _, rec := range engine.History() {
		companies = append(companies, rec.Company)
	}
	require.Equal(t, []string{"Pending", "Synced A", "Synced B", "Older"}, companies)
}
