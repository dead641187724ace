package quotes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"stock-trading-sim-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned when the provider cannot supply a price for a
// symbol. Callers must treat it as a per-symbol condition, not a fatal one.
var ErrUnavailable = errors.New("quote unavailable")

// Quote is the latest price information for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"current_price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// SymbolMatch is a single result from a symbol search.
type SymbolMatch struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// ClientInterface defines the interface for the market-data provider client.
type ClientInterface interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error)
}

// Client is a client for the market-data provider's REST API.
// It implements ClientInterface.
type Client struct {
	client  *resty.Client
	token   string
	logger  *zap.Logger
	limiter *rate.Limiter
	timeout time.Duration
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new market-data provider client.
func NewClient(cfg *config.Quotes, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		client:  client,
		token:   cfg.Token,
		logger:  logger,
		limiter: limiter,
		timeout: timeout,
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Each attempt runs under the client's bounded timeout so one slow symbol
// cannot stall an aggregation that fans out across many symbols.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(attemptCtx).Execute(method, url)
		cancel()

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// quoteResponse mirrors the provider's quote payload.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
}

// GetQuote fetches the latest price for a single symbol.
// The provider answers unknown symbols with a zero price rather than an HTTP
// error; both cases map to ErrUnavailable.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var result quoteResponse

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetQueryParam("token", c.token).
		SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", "/quote", req); err != nil {
		c.logger.Warn("Failed to fetch quote", zap.String("symbol", symbol), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, err)
	}

	if result.Current <= 0 {
		return nil, fmt.Errorf("%w: no price for symbol %s", ErrUnavailable, symbol)
	}

	return &Quote{
		Symbol:        symbol,
		CurrentPrice:  result.Current,
		Change:        result.Change,
		ChangePercent: result.ChangePercent,
	}, nil
}

// searchResponse mirrors the provider's symbol-search payload.
type searchResponse struct {
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
	} `json:"result"`
}

// SearchSymbols looks up symbols matching a free-text query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	var result searchResponse

	req := c.client.R().
		SetQueryParam("q", query).
		SetQueryParam("token", c.token).
		SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", "/search", req); err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}

	matches := make([]SymbolMatch, 0, len(result.Result))
	for _, r := range result.Result {
		matches = append(matches, SymbolMatch{Symbol: r.Symbol, Description: r.Description})
	}
	return matches, nil
}
