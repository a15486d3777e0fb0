package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const EbayFindingBaseURL = "https://svcs.ebay.com"

type EbayOpts struct {
	AppID   string
	BaseURL string
	// RatePerSecond limits outgoing requests. Zero means 5 per second.
	RatePerSecond float64
}

// EbayFinding searches eBay through the Finding API (findItemsByKeywords).
type EbayFinding struct {
	httpClient *resty.Client
	appID      string
	limiter    *rate.Limiter
}

func NewEbayFinding(opts EbayOpts) *EbayFinding {
	baseURL := EbayFindingBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &EbayFinding{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
		appID:   opts.AppID,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (e *EbayFinding) Name() string { return "ebay_search" }

func (e *EbayFinding) Description() string {
	return "Searches eBay for listings comparable to a given item description to help assess price fairness. Returns titles, prices and links of similar items."
}

// The Finding API wraps every field in a single-element array.
type findingResponse struct {
	FindItemsByKeywordsResponse []struct {
		Ack          []string `json:"ack"`
		ErrorMessage []struct {
			Error []struct {
				Message []string `json:"message"`
			} `json:"error"`
		} `json:"errorMessage"`
		SearchResult []struct {
			Item []findingItem `json:"item"`
		} `json:"searchResult"`
	} `json:"findItemsByKeywordsResponse"`
}

type findingAmount struct {
	CurrencyID string `json:"@currencyId"`
	Value      string `json:"__value__"`
}

type findingItem struct {
	Title         []string `json:"title"`
	ViewItemURL   []string `json:"viewItemURL"`
	SellingStatus []struct {
		CurrentPrice []findingAmount `json:"currentPrice"`
	} `json:"sellingStatus"`
	ShippingInfo []struct {
		ShippingType        []string        `json:"shippingType"`
		ShippingServiceCost []findingAmount `json:"shippingServiceCost"`
	} `json:"shippingInfo"`
}

func (e *EbayFinding) Search(ctx context.Context, query string) ([]ComparableListing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrUnavailable)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var result findingResponse
	_, err := handleError(e.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"OPERATION-NAME":                 "findItemsByKeywords",
			"SERVICE-VERSION":                "1.0.0",
			"SECURITY-APPNAME":               e.appID,
			"RESPONSE-DATA-FORMAT":           "JSON",
			"REST-PAYLOAD":                   "",
			"keywords":                       query,
			"paginationInput.entriesPerPage": strconv.Itoa(MaxResults),
		}).
		SetResult(&result).
		Get("/services/search/FindingService/v1"))
	if err != nil {
		return nil, fmt.Errorf("%w: ebay: %w", ErrUnavailable, err)
	}

	if len(result.FindItemsByKeywordsResponse) == 0 {
		return nil, fmt.Errorf("%w: ebay: empty response", ErrUnavailable)
	}
	resp := result.FindItemsByKeywordsResponse[0]
	if first(resp.Ack) != "Success" && first(resp.Ack) != "Warning" {
		msg := "unknown error"
		if len(resp.ErrorMessage) > 0 && len(resp.ErrorMessage[0].Error) > 0 {
			msg = first(resp.ErrorMessage[0].Error[0].Message)
		}
		return nil, fmt.Errorf("%w: ebay: %s", ErrUnavailable, msg)
	}

	var items []ComparableListing
	for _, sr := range resp.SearchResult {
		for _, it := range sr.Item {
			items = append(items, it.toListing())
		}
	}
	log.Debug().Str("query", query).Int("results", len(items)).Msg("ebay search")
	return limit(items), nil
}

func (it findingItem) toListing() ComparableListing {
	l := ComparableListing{
		Title: first(it.Title),
		URL:   first(it.ViewItemURL),
	}
	if len(it.SellingStatus) > 0 && len(it.SellingStatus[0].CurrentPrice) > 0 {
		l.Price = formatAmount(it.SellingStatus[0].CurrentPrice[0])
	}
	if len(it.ShippingInfo) > 0 {
		info := it.ShippingInfo[0]
		switch {
		case first(info.ShippingType) == "Free":
			l.DeliveryInfo = "Free shipping"
		case len(info.ShippingServiceCost) > 0:
			l.DeliveryInfo = "Shipping " + formatAmount(info.ShippingServiceCost[0])
		}
	}
	return l
}

func formatAmount(a findingAmount) string {
	if a.CurrencyID == "USD" || a.CurrencyID == "" {
		return "$" + a.Value
	}
	return a.Value + " " + a.CurrencyID
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// handleError turns failing responses (>399 status code) into errors.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d)", res.Request.Method, res.Request.URL, res.StatusCode())
	}
	return res, nil
}
