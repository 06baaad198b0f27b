package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	quotePath      = "/quote"

	// Free tier allows 60 calls per minute.
	defaultRatePerSecond = 1
	priceScale           = 4
)

// Client implements marketdata.QuoteProvider using the Finnhub API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Finnhub API client throttled to ratePerSecond calls.
func NewClient(apiKey string, ratePerSecond float64) *Client {
	return NewClientWithHTTPClient(apiKey, ratePerSecond, &http.Client{
		Timeout: 10 * time.Second,
	})
}

// NewClientWithHTTPClient creates a new Finnhub client with a custom HTTP client (for testing).
func NewClientWithHTTPClient(apiKey string, ratePerSecond float64, httpClient *http.Client) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// quoteResponse represents the Finnhub quote response.
type quoteResponse struct {
	Current       float64 `json:"c"`  // Current price
	PreviousClose float64 `json:"pc"` // Previous close price
	Timestamp     int64   `json:"t"`  // Timestamp
}

// GetQuote retrieves the current quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("token", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, quotePath, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close response body", "error", closeErr, "symbol", symbol)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var quoteResp quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// Finnhub returns 0 for all fields if the symbol is unknown
	if quoteResp.Current == 0 && quoteResp.PreviousClose == 0 && quoteResp.Timestamp == 0 {
		return nil, fmt.Errorf("no quote data found for symbol: %s", symbol)
	}
	if quoteResp.Current <= 0 {
		return nil, fmt.Errorf("non-positive quote for symbol %s: %v", symbol, quoteResp.Current)
	}

	price, err := domain.NewDecimalFromString(decimal.NewFromFloat(quoteResp.Current).Round(priceScale).String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	return &marketdata.QuoteResult{
		Symbol: symbol,
		Price:  price,
		Time:   time.Unix(quoteResp.Timestamp, 0).UTC(),
	}, nil
}
