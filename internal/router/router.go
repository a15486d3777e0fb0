// Package router decides whether free-text input asks for a listing analysis
// or a product search, runs the matching flow and returns one result shape.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/rs/zerolog/log"
)

// DefaultLengthThreshold is the query length above which input is treated as
// a listing description without asking the model.
const DefaultLengthThreshold = 50

type AnalysisType string

const (
	AnalysisListing AnalysisType = "listing"
	AnalysisSearch  AnalysisType = "search"
)

type AnalysisRequest struct {
	Query      string `json:"query"`
	ListingURL string `json:"listingUrl,omitempty"`
	Image      string `json:"image,omitempty"`
}

func (r AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query is required", llm.ErrInvalidRequest)
	}
	if r.ListingURL != "" {
		return flows.ValidateURL(r.ListingURL)
	}
	return nil
}

// UnifiedResult carries exactly one of ListingAnalysis or ProductSearch,
// matching AnalysisType.
type UnifiedResult struct {
	AnalysisType    AnalysisType               `json:"analysisType"`
	ListingAnalysis *flows.ListingAnalysis     `json:"listingAnalysis,omitempty"`
	ProductSearch   *flows.ProductSearchResult `json:"productSearch,omitempty"`
	OriginalQuery   string                     `json:"originalQuery"`
}

func (r UnifiedResult) Validate() error {
	switch r.AnalysisType {
	case AnalysisListing:
		if r.ListingAnalysis == nil || r.ProductSearch != nil {
			return errors.New("listing result must carry only a listing analysis")
		}
	case AnalysisSearch:
		if r.ProductSearch == nil || r.ListingAnalysis != nil {
			return errors.New("search result must carry only a product search")
		}
	default:
		return fmt.Errorf("unknown analysis type %q", r.AnalysisType)
	}
	return nil
}

// Flows is the subset of flows.Service the router dispatches to.
type Flows interface {
	AnalyzeListing(ctx context.Context, in flows.ListingInput) (*flows.ListingAnalysis, error)
	ProductSearchAndAnalysis(ctx context.Context, in flows.ProductSearchInput) (*flows.ProductSearchResult, error)
	ClassifyIntent(ctx context.Context, in flows.IntentInput) (*flows.IntentResult, error)
}

// Recorder persists results in the background. Record must not block.
type Recorder interface {
	Record(ownerID string, result UnifiedResult)
}

type Router struct {
	flows     Flows
	recorder  Recorder
	threshold int
}

type Option func(*Router)

// WithRecorder hands results of requests with an owner to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) { r.recorder = rec }
}

// WithLengthThreshold overrides DefaultLengthThreshold. Non-positive values
// are ignored.
func WithLengthThreshold(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.threshold = n
		}
	}
}

func New(f Flows, opts ...Option) *Router {
	r := &Router{flows: f, threshold: DefaultLengthThreshold}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AnalyzeOrSearch routes the request and returns the unified result. A URL
// or a query longer than the threshold always means listing analysis;
// otherwise the model classifies the query once. When ownerID is set the
// result is recorded in the background; recording never affects the
// returned value.
func (r *Router) AnalyzeOrSearch(ctx context.Context, req AnalysisRequest, ownerID string) (*UnifiedResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	intent, err := r.intent(ctx, req)
	if err != nil {
		return nil, err
	}

	var result *UnifiedResult
	switch intent {
	case flows.IntentAnalysis:
		analysis, err := r.flows.AnalyzeListing(ctx, flows.ListingInput{
			Description: req.Query,
			ListingURL:  req.ListingURL,
			Image:       req.Image,
		})
		if err != nil {
			return nil, err
		}
		result = &UnifiedResult{AnalysisType: AnalysisListing, ListingAnalysis: analysis, OriginalQuery: req.Query}
	default:
		search, err := r.flows.ProductSearchAndAnalysis(ctx, flows.ProductSearchInput{Query: req.Query})
		if err != nil {
			return nil, err
		}
		result = &UnifiedResult{AnalysisType: AnalysisSearch, ProductSearch: search, OriginalQuery: req.Query}
	}

	log.Info().
		Str("analysisType", string(result.AnalysisType)).
		Bool("hasOwner", ownerID != "").
		Msg("analysis complete")

	if ownerID != "" && r.recorder != nil {
		r.recorder.Record(ownerID, *result)
	}
	return result, nil
}

func (r *Router) intent(ctx context.Context, req AnalysisRequest) (string, error) {
	if req.ListingURL != "" {
		log.Debug().Msg("listing url present, routing to listing analysis")
		return flows.IntentAnalysis, nil
	}
	if n := utf8.RuneCountInString(req.Query); n > r.threshold {
		log.Debug().Int("queryLength", n).Int("threshold", r.threshold).Msg("long query, routing to listing analysis")
		return flows.IntentAnalysis, nil
	}

	res, err := r.flows.ClassifyIntent(ctx, flows.IntentInput{Query: req.Query})
	if err != nil {
		return "", err
	}
	log.Debug().Str("intent", res.Intent).Msg("intent classified")
	return res.Intent, nil
}
