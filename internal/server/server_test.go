package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/raine/itemcheck/internal/router"
	"github.com/raine/itemcheck/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type flowsMock struct {
	mock.Mock
}

func (m *flowsMock) AnalyzeListing(ctx context.Context, in flows.ListingInput) (*flows.ListingAnalysis, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.ListingAnalysis)
	return res, args.Error(1)
}

func (m *flowsMock) AnalyzeImageForDamage(ctx context.Context, in flows.ImageInput) (*flows.DamageReport, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.DamageReport)
	return res, args.Error(1)
}

func (m *flowsMock) AnalyzeTextForBias(ctx context.Context, in flows.TextInput) (*flows.BiasAnalysis, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.BiasAnalysis)
	return res, args.Error(1)
}

func (m *flowsMock) ExtractAndAnalyzeImage(ctx context.Context, in flows.ImageInput) (*flows.ImageTextAnalysis, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.ImageTextAnalysis)
	return res, args.Error(1)
}

func (m *flowsMock) CheckPriceFairness(ctx context.Context, in flows.PriceFairnessInput) (*flows.PriceFairnessResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.PriceFairnessResult)
	return res, args.Error(1)
}

func (m *flowsMock) AssessListingQuality(ctx context.Context, in flows.QualityInput) (*flows.QualityAssessment, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.QualityAssessment)
	return res, args.Error(1)
}

func (m *flowsMock) ProductSearchAndAnalysis(ctx context.Context, in flows.ProductSearchInput) (*flows.ProductSearchResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*flows.ProductSearchResult)
	return res, args.Error(1)
}

type analyzerMock struct {
	mock.Mock
}

func (m *analyzerMock) AnalyzeOrSearch(ctx context.Context, req router.AnalysisRequest, ownerID string) (*router.UnifiedResult, error) {
	args := m.Called(ctx, req, ownerID)
	res, _ := args.Get(0).(*router.UnifiedResult)
	return res, args.Error(1)
}

type testEnv struct {
	flows    *flowsMock
	analyzer *analyzerMock
	store    *storage.SQLiteStore
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{flows: &flowsMock{}, analyzer: &analyzerMock{}, store: store}
	env.handler = New(Options{
		Flows:    env.flows,
		Router:   env.analyzer,
		History:  store,
		Provider: "gemini",
	}).Handler()
	return env
}

func (e *testEnv) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "gemini", body["provider"])
}

func TestAnalyze_PassesOwner(t *testing.T) {
	env := newTestEnv(t)
	result := &router.UnifiedResult{
		AnalysisType:  router.AnalysisSearch,
		ProductSearch: &flows.ProductSearchResult{OverallVerdict: flows.Verdict{IsRecommended: true, Reason: "cheap"}},
		OriginalQuery: "bike",
	}
	env.analyzer.On("AnalyzeOrSearch", mock.Anything, router.AnalysisRequest{Query: "bike"}, "user-1").Return(result, nil)

	rr := env.do(http.MethodPost, "/api/analyze", `{"query":"bike"}`, map[string]string{OwnerHeader: "user-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got router.UnifiedResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, router.AnalysisSearch, got.AnalysisType)
	assert.Equal(t, "bike", got.OriginalQuery)
	assert.Nil(t, got.ListingAnalysis)
	env.analyzer.AssertExpectations(t)
}

func TestAnalyze_AnonymousHasNoOwner(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.On("AnalyzeOrSearch", mock.Anything, mock.Anything, "").
		Return(&router.UnifiedResult{AnalysisType: router.AnalysisListing, ListingAnalysis: &flows.ListingAnalysis{}}, nil)

	rr := env.do(http.MethodPost, "/api/analyze", `{"query":"camera","listingUrl":"https://example.com/1"}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	env.analyzer.AssertExpectations(t)
}

func TestAnalyze_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPost, "/api/analyze", `{"query":`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
	env.analyzer.AssertNotCalled(t, "AnalyzeOrSearch", mock.Anything, mock.Anything, mock.Anything)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", fmt.Errorf("%w: query is required", llm.ErrInvalidRequest), http.StatusBadRequest},
		{"bad model output", fmt.Errorf("analyze-listing: %w: bad json", llm.ErrModelResponseInvalid), http.StatusBadGateway},
		{"model down", fmt.Errorf("analyze-listing: %w: 503", llm.ErrModelUnavailable), http.StatusServiceUnavailable},
		{"tool down", fmt.Errorf("%w: ebay_search", llm.ErrToolUnavailable), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.analyzer.On("AnalyzeOrSearch", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			rr := env.do(http.MethodPost, "/api/analyze", `{"query":"bike"}`, nil)
			assert.Equal(t, tt.status, rr.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body.Error)
			}
		})
	}
}

func TestFlowEndpoints(t *testing.T) {
	env := newTestEnv(t)

	env.flows.On("AnalyzeListing", mock.Anything, flows.ListingInput{Description: "Old Canon camera"}).
		Return(&flows.ListingAnalysis{OverallScore: flows.ScoreAndReason{Score: 6, Reason: "ok"}}, nil)
	env.flows.On("AssessListingQuality", mock.Anything, flows.QualityInput{Description: "desc", FilledOutFields: "price"}).
		Return(&flows.QualityAssessment{QualityScore: 0.5}, nil)
	env.flows.On("CheckPriceFairness", mock.Anything, flows.PriceFairnessInput{ListingDescription: "camera", ListingPrice: 30}).
		Return(&flows.PriceFairnessResult{IsFairPrice: true}, nil)
	env.flows.On("AnalyzeImageForDamage", mock.Anything, flows.ImageInput{Image: "data:image/png;base64,AA=="}).
		Return(&flows.DamageReport{Summary: "fine"}, nil)
	env.flows.On("ExtractAndAnalyzeImage", mock.Anything, flows.ImageInput{Image: "data:image/png;base64,AA=="}).
		Return(&flows.ImageTextAnalysis{Analysis: flows.BiasAnalysis{Summary: flows.NoTextSummary}}, nil)
	env.flows.On("AnalyzeTextForBias", mock.Anything, flows.TextInput{Text: "a long enough text to analyze"}).
		Return(&flows.BiasAnalysis{Summary: "neutral"}, nil)
	env.flows.On("ProductSearchAndAnalysis", mock.Anything, flows.ProductSearchInput{Query: "bike"}).
		Return(&flows.ProductSearchResult{OverallVerdict: flows.Verdict{Reason: "meh"}}, nil)

	tests := []struct {
		path string
		body string
		want string
	}{
		{"/api/listings/analyze", `{"description":"Old Canon camera"}`, `"overallScore"`},
		{"/api/listings/quality", `{"description":"desc","filledOutFields":"price"}`, `"qualityScore":0.5`},
		{"/api/listings/price-fairness", `{"listingDescription":"camera","listingPrice":30}`, `"isFairPrice":true`},
		{"/api/images/damage", `{"image":"data:image/png;base64,AA=="}`, `"summary":"fine"`},
		{"/api/images/text-analysis", `{"image":"data:image/png;base64,AA=="}`, `"extractedText":""`},
		{"/api/text/bias", `{"text":"a long enough text to analyze"}`, `"summary":"neutral"`},
		{"/api/products/search", `{"query":"bike"}`, `"reason":"meh"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := env.do(http.MethodPost, tt.path, tt.body, nil)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
	env.flows.AssertExpectations(t)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	result := router.UnifiedResult{
		AnalysisType:    router.AnalysisListing,
		ListingAnalysis: &flows.ListingAnalysis{OverallScore: flows.ScoreAndReason{Score: 9, Reason: "great"}},
		OriginalQuery:   "camera",
	}
	id, err := env.store.Append(ctx, "user-1", result)
	require.NoError(t, err)

	t.Run("requires owner", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/history", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("list", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/history", "", map[string]string{OwnerHeader: "user-1"})
		require.Equal(t, http.StatusOK, rr.Code)
		var list []history.Summary
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, id, list[0].ID)
		require.NotNil(t, list[0].OverallScore)
		assert.Equal(t, 9.0, *list[0].OverallScore)
	})

	t.Run("list for other owner is empty", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/history", "", map[string]string{OwnerHeader: "user-2"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("get", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/history/"+id, "", map[string]string{OwnerHeader: "user-1"})
		require.Equal(t, http.StatusOK, rr.Code)
		var entry history.Entry
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
		assert.Equal(t, result, entry.Result)
	})

	t.Run("get other owner", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/api/history/"+id, "", map[string]string{OwnerHeader: "user-2"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", bytes.NewReader(nil))
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", OwnerHeader)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t)
	s := New(Options{Flows: env.flows, Router: env.analyzer, History: env.store})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
