// Package history keeps a per-owner log of unified analysis results.
package history

import (
	"context"
	"time"

	"github.com/raine/itemcheck/internal/router"
)

// Entry is one stored result. Entries are never modified after Append.
type Entry struct {
	ID        string               `json:"id"`
	OwnerID   string               `json:"ownerId"`
	CreatedAt time.Time            `json:"createdAt"`
	Result    router.UnifiedResult `json:"result"`
}

// Summary is the list view of an Entry.
type Summary struct {
	ID           string              `json:"id"`
	Query        string              `json:"query"`
	AnalysisType router.AnalysisType `json:"analysisType"`
	OverallScore *float64            `json:"overallScore,omitempty"`
	Recommended  *bool               `json:"recommended,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// Summarize derives the list view from a full entry. OverallScore is set for
// listing analyses and Recommended for product searches.
func Summarize(e Entry) Summary {
	s := Summary{
		ID:           e.ID,
		Query:        e.Result.OriginalQuery,
		AnalysisType: e.Result.AnalysisType,
		CreatedAt:    e.CreatedAt,
	}
	if la := e.Result.ListingAnalysis; la != nil {
		score := la.OverallScore.Score
		s.OverallScore = &score
	}
	if ps := e.Result.ProductSearch; ps != nil {
		rec := ps.OverallVerdict.IsRecommended
		s.Recommended = &rec
	}
	return s
}

// Store persists history entries.
type Store interface {
	// Append stores result for ownerID and returns the new entry id.
	Append(ctx context.Context, ownerID string, result router.UnifiedResult) (string, error)
	// List returns the owner's entries, newest first.
	List(ctx context.Context, ownerID string) ([]Summary, error)
	// Get returns nil, nil when the entry does not exist or belongs to
	// another owner.
	Get(ctx context.Context, ownerID, id string) (*Entry, error)
}
