package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEbay(t *testing.T) {
	tool := NewMockEbay()
	assert.Equal(t, "ebay_search", tool.Name())

	tests := []struct {
		query     string
		wantTitle string
		wantPrice string
	}{
		{"Vintage Camera Canon AE-1", "Vintage Polaroid Camera", "$75"},
		{"kids bike", "Mountain Bike (Used)", "$150"},
		{"desk lamp", "desk lamp (Item A)", "$25"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			items, err := tool.Search(context.Background(), tt.query)
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, tt.wantTitle, items[0].Title)
			assert.Equal(t, tt.wantPrice, items[0].Price)
			assert.Contains(t, items[0].URL, "https://www.ebay.com/sch/")
		})
	}
}

func TestMockAmazon_Deterministic(t *testing.T) {
	tool := NewMockAmazon()
	a, err := tool.Search(context.Background(), "usb-c charger")
	require.NoError(t, err)
	b, err := tool.Search(context.Background(), "usb-c charger")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	require.Len(t, a, 2)
	assert.Equal(t, "$199.99", a[0].Price)
	assert.Equal(t, "Free delivery tomorrow", a[1].DeliveryInfo)
	assert.Equal(t, "https://www.amazon.com/s?k=usb-c+charger", a[0].URL)
}

func TestMockAliExpress(t *testing.T) {
	items, err := NewMockAliExpress().Search(context.Background(), "phone case")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Factory Direct phone case High Quality", items[0].Title)
	assert.Equal(t, "https://www.aliexpress.com/w/wholesale-phone%20case.html", items[0].URL)
}

func TestMock_EmptyQuery(t *testing.T) {
	_, err := NewMockAmazon().Search(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEbayFinding_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/search/FindingService/v1", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "findItemsByKeywords", q.Get("OPERATION-NAME"))
		assert.Equal(t, "app-123", q.Get("SECURITY-APPNAME"))
		assert.Equal(t, "vintage camera", q.Get("keywords"))
		assert.Equal(t, "5", q.Get("paginationInput.entriesPerPage"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"findItemsByKeywordsResponse":[{"ack":["Success"],"searchResult":[{"@count":"2","item":[
			{"title":["Canon AE-1"],"viewItemURL":["https://www.ebay.com/itm/1"],"sellingStatus":[{"currentPrice":[{"@currencyId":"USD","__value__":"120.0"}]}],"shippingInfo":[{"shippingType":["Free"]}]},
			{"title":["Minolta X-700"],"viewItemURL":["https://www.ebay.com/itm/2"],"sellingStatus":[{"currentPrice":[{"@currencyId":"EUR","__value__":"95.5"}]}],"shippingInfo":[{"shippingType":["Flat"],"shippingServiceCost":[{"@currencyId":"USD","__value__":"12.0"}]}]}
		]}]}]}`))
	}))
	defer ts.Close()

	client := NewEbayFinding(EbayOpts{AppID: "app-123", BaseURL: ts.URL})
	items, err := client.Search(context.Background(), "vintage camera")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ComparableListing{Title: "Canon AE-1", Price: "$120.0", URL: "https://www.ebay.com/itm/1", DeliveryInfo: "Free shipping"}, items[0])
	assert.Equal(t, "95.5 EUR", items[1].Price)
	assert.Equal(t, "Shipping $12.0", items[1].DeliveryInfo)
}

func TestEbayFinding_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusInternalServerError, `{}`},
		{"api failure", http.StatusOK, `{"findItemsByKeywordsResponse":[{"ack":["Failure"],"errorMessage":[{"error":[{"message":["Invalid application"]}]}]}]}`},
		{"empty", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := NewEbayFinding(EbayOpts{AppID: "x", BaseURL: ts.URL}).Search(context.Background(), "lamp")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}
