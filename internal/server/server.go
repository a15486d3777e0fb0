// Package server exposes the flows, the intent router and the history over
// a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/raine/itemcheck/internal/router"
	"github.com/rs/zerolog/log"
)

// OwnerHeader carries the authenticated user id, set by the fronting auth
// layer.
const OwnerHeader = "X-User-ID"

// maxBodyBytes bounds request bodies; images arrive inline as data URIs.
const maxBodyBytes = 10 << 20

// Flows is what the per-flow endpoints call.
type Flows interface {
	AnalyzeListing(ctx context.Context, in flows.ListingInput) (*flows.ListingAnalysis, error)
	AnalyzeImageForDamage(ctx context.Context, in flows.ImageInput) (*flows.DamageReport, error)
	AnalyzeTextForBias(ctx context.Context, in flows.TextInput) (*flows.BiasAnalysis, error)
	ExtractAndAnalyzeImage(ctx context.Context, in flows.ImageInput) (*flows.ImageTextAnalysis, error)
	CheckPriceFairness(ctx context.Context, in flows.PriceFairnessInput) (*flows.PriceFairnessResult, error)
	AssessListingQuality(ctx context.Context, in flows.QualityInput) (*flows.QualityAssessment, error)
	ProductSearchAndAnalysis(ctx context.Context, in flows.ProductSearchInput) (*flows.ProductSearchResult, error)
}

// Analyzer is the intent router entry point.
type Analyzer interface {
	AnalyzeOrSearch(ctx context.Context, req router.AnalysisRequest, ownerID string) (*router.UnifiedResult, error)
}

type Options struct {
	Flows    Flows
	Router   Analyzer
	History  history.Store
	Origins  []string
	Provider string
}

type Server struct {
	flows    Flows
	router   Analyzer
	history  history.Store
	origins  []string
	provider string
}

func New(opts Options) *Server {
	origins := opts.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		flows:    opts.Flows,
		router:   opts.Router,
		history:  opts.History,
		origins:  origins,
		provider: opts.Provider,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", OwnerHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)

		r.Post("/listings/analyze", handle(s.flows.AnalyzeListing))
		r.Post("/listings/quality", handle(s.flows.AssessListingQuality))
		r.Post("/listings/price-fairness", handle(s.flows.CheckPriceFairness))
		r.Post("/images/damage", handle(s.flows.AnalyzeImageForDamage))
		r.Post("/images/text-analysis", handle(s.flows.ExtractAndAnalyzeImage))
		r.Post("/text/bias", handle(s.flows.AnalyzeTextForBias))
		r.Post("/products/search", handle(s.flows.ProductSearchAndAnalysis))

		r.Get("/history", s.handleHistoryList)
		r.Get("/history/{id}", s.handleHistoryGet)
	})

	return r
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting http server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": s.provider})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req router.AnalysisRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.router.AnalyzeOrSearch(r.Context(), req, r.Header.Get(OwnerHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	list, err := s.history.List(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	entry, err := s.history.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "history entry not found"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handle adapts a flow method to a JSON endpoint.
func handle[In, Out any](fn func(context.Context, In) (*Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if !decode(w, r, &in) {
			return
		}
		out, err := fn(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(OwnerHeader)
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: OwnerHeader + " header is required"})
		return "", false
	}
	return owner, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, llm.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, llm.ErrModelResponseInvalid):
		return http.StatusBadGateway
	case errors.Is(err, llm.ErrModelUnavailable), errors.Is(err, llm.ErrToolUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
