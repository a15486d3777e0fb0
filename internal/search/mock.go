package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// MockTool returns canned listings built from the query.
type MockTool struct {
	name        string
	description string
	results     func(query string) []ComparableListing
}

func (m *MockTool) Name() string        { return m.name }
func (m *MockTool) Description() string { return m.description }

func (m *MockTool) Search(ctx context.Context, query string) ([]ComparableListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrUnavailable)
	}
	items := limit(m.results(query))
	log.Debug().Str("tool", m.name).Str("query", query).Int("results", len(items)).Msg("mock search")
	return items, nil
}

// NewMockEbay returns comparable eBay listings for a few known item kinds
// and generic ones otherwise.
func NewMockEbay() *MockTool {
	return &MockTool{
		name:        "ebay_search",
		description: "Searches eBay for listings comparable to a given item description to help assess price fairness. Returns titles, prices and links of similar items.",
		results:     ebayMockResults,
	}
}

func ebayMockResults(query string) []ComparableListing {
	searchURL := "https://www.ebay.com/sch/i.html?_nkw=" + url.QueryEscape(query)
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "vintage camera"):
		return []ComparableListing{
			{Title: "Vintage Polaroid Camera", Price: "$75", URL: searchURL},
			{Title: "Antique Kodak Brownie Camera", Price: "$50", URL: searchURL},
			{Title: "Retro 35mm Film Camera", Price: "$120", URL: searchURL},
		}
	case strings.Contains(q, "bike"):
		return []ComparableListing{
			{Title: "Mountain Bike (Used)", Price: "$150", URL: searchURL},
			{Title: "Road Bike (New)", Price: "$400", URL: searchURL},
			{Title: "Kids Bike", Price: "$80", URL: searchURL},
		}
	default:
		return []ComparableListing{
			{Title: query + " (Item A)", Price: "$25", URL: searchURL},
			{Title: query + " (Item B)", Price: "$40", URL: searchURL},
			{Title: query + " (Item C)", Price: "$30", URL: searchURL},
		}
	}
}

// NewMockAmazon returns two Amazon offers. The model number is derived from
// the query so repeated searches return identical results.
func NewMockAmazon() *MockTool {
	prices := []string{"$199.99", "$219.5", "$185.0"}
	delivery := []string{"1-day shipping", "Free delivery tomorrow", "Ships in 2-3 days"}
	return &MockTool{
		name:        "amazon_search",
		description: "Searches Amazon for product listings to find prices and delivery information.",
		results: func(query string) []ComparableListing {
			h := fnv.New32a()
			h.Write([]byte(query))
			model := h.Sum32() % 1000

			items := make([]ComparableListing, 0, 2)
			for i := range 2 {
				items = append(items, ComparableListing{
					Title:        fmt.Sprintf("Amazon Basics %s, Model #%d", query, model),
					Price:        prices[i%len(prices)],
					DeliveryInfo: delivery[i%len(delivery)],
					URL:          "https://www.amazon.com/s?k=" + url.QueryEscape(query),
				})
			}
			return items
		},
	}
}

// NewMockAliExpress returns two AliExpress offers.
func NewMockAliExpress() *MockTool {
	prices := []string{"$150.0", "$165.99", "$140.5"}
	delivery := []string{"15-30 day shipping", "Free shipping (30 days)", "ePacket delivery"}
	return &MockTool{
		name:        "aliexpress_search",
		description: "Searches AliExpress for product listings to find prices and delivery information.",
		results: func(query string) []ComparableListing {
			items := make([]ComparableListing, 0, 2)
			for i := range 2 {
				items = append(items, ComparableListing{
					Title:        fmt.Sprintf("Factory Direct %s High Quality", query),
					Price:        prices[i%len(prices)],
					DeliveryInfo: delivery[i%len(delivery)],
					URL:          "https://www.aliexpress.com/w/wholesale-" + url.PathEscape(query) + ".html",
				})
			}
			return items
		},
	}
}
