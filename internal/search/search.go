// Package search provides marketplace search tools that return comparable
// listings for price and availability checks.
package search

import (
	"context"
	"errors"
)

// MaxResults bounds how many listings a tool returns for one query.
const MaxResults = 5

// ErrUnavailable is returned when a marketplace could not be searched.
var ErrUnavailable = errors.New("search unavailable")

// ComparableListing is a marketplace item used as price and delivery
// reference.
type ComparableListing struct {
	Title        string `json:"title"`
	Price        string `json:"price"`
	URL          string `json:"url"`
	DeliveryInfo string `json:"deliveryInfo,omitempty"`
}

// Tool searches one marketplace.
type Tool interface {
	Name() string
	Description() string
	Search(ctx context.Context, query string) ([]ComparableListing, error)
}

func limit(items []ComparableListing) []ComparableListing {
	if len(items) > MaxResults {
		return items[:MaxResults]
	}
	return items
}
