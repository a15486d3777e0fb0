package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// started by an init in the genai dependency chain
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	entered chan struct{}
	gate    chan struct{}
}

func (s *fakeStore) Append(ctx context.Context, ownerID string, result router.UnifiedResult) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.entries = append(s.entries, Entry{ID: ownerID + "-entry", OwnerID: ownerID, Result: result})
	return ownerID + "-entry", nil
}

func (s *fakeStore) List(ctx context.Context, ownerID string) ([]Summary, error) { return nil, nil }

func (s *fakeStore) Get(ctx context.Context, ownerID, id string) (*Entry, error) { return nil, nil }

func (s *fakeStore) saved() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func searchResult(query string) router.UnifiedResult {
	return router.UnifiedResult{
		AnalysisType:  router.AnalysisSearch,
		ProductSearch: &flows.ProductSearchResult{OverallVerdict: flows.Verdict{IsRecommended: true}},
		OriginalQuery: query,
	}
}

func startRecorder(t *testing.T, rec *Recorder) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()
	return cancel, done
}

func TestRecorder_SavesInBackground(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store, 4)
	cancel, done := startRecorder(t, rec)
	defer cancel()

	rec.Record("alice", searchResult("bike"))
	rec.Record("bob", searchResult("camera"))
	rec.Close()

	require.NoError(t, <-done)
	saved := store.saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "alice", saved[0].OwnerID)
	assert.Equal(t, "bike", saved[0].Result.OriginalQuery)
	assert.Equal(t, "bob", saved[1].OwnerID)
}

func TestRecorder_StoreErrorsAreSwallowed(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	rec := NewRecorder(store, 4)
	cancel, done := startRecorder(t, rec)
	defer cancel()

	assert.NotPanics(t, func() { rec.Record("alice", searchResult("bike")) })
	rec.Close()
	require.NoError(t, <-done)
	assert.Empty(t, store.saved())
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	store := &fakeStore{entered: make(chan struct{}, 4), gate: make(chan struct{})}
	rec := NewRecorder(store, 1)
	cancel, done := startRecorder(t, rec)
	defer cancel()

	rec.Record("alice", searchResult("first"))
	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("recorder did not pick up the first result")
	}

	rec.Record("alice", searchResult("second"))
	rec.Record("alice", searchResult("third"))
	close(store.gate)
	rec.Close()
	require.NoError(t, <-done)

	saved := store.saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "first", saved[0].Result.OriginalQuery)
	assert.Equal(t, "second", saved[1].Result.OriginalQuery)
}

func TestRecorder_CancelDrainsPending(t *testing.T) {
	store := &fakeStore{entered: make(chan struct{}, 4), gate: make(chan struct{})}
	rec := NewRecorder(store, 4)
	cancel, done := startRecorder(t, rec)

	rec.Record("alice", searchResult("first"))
	<-store.entered
	rec.Record("alice", searchResult("second"))
	cancel()
	close(store.gate)

	require.NoError(t, <-done)
	assert.Len(t, store.saved(), 2)

	rec.Record("alice", searchResult("late"))
	assert.Len(t, store.saved(), 2)
}

func TestRecorder_CloseWithoutRun(t *testing.T) {
	rec := NewRecorder(&fakeStore{}, 0)
	assert.Equal(t, DefaultBuffer, cap(rec.jobs))
	rec.Record("alice", searchResult("bike"))
	rec.Close()
	rec.Close()
	rec.Record("alice", searchResult("bike"))
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	listing := Summarize(Entry{
		ID:        "1",
		CreatedAt: now,
		Result: router.UnifiedResult{
			AnalysisType:    router.AnalysisListing,
			ListingAnalysis: &flows.ListingAnalysis{OverallScore: flows.ScoreAndReason{Score: 6.5}},
			OriginalQuery:   "old camera",
		},
	})
	assert.Equal(t, "old camera", listing.Query)
	assert.Equal(t, router.AnalysisListing, listing.AnalysisType)
	require.NotNil(t, listing.OverallScore)
	assert.Equal(t, 6.5, *listing.OverallScore)
	assert.Nil(t, listing.Recommended)
	assert.Equal(t, now, listing.CreatedAt)

	search := Summarize(Entry{ID: "2", Result: searchResult("bike")})
	assert.Nil(t, search.OverallScore)
	require.NotNil(t, search.Recommended)
	assert.True(t, *search.Recommended)
}
