package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tracker-backend/internal/domain"
)

const FapiBaseURL = "https://fapi.binance.com"

var _ domain.BatchPriceSource = (*Client)(nil)

// Client reads last prices from the Binance USDⓈ-M futures REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = FapiBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError captures structured error info returned by Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "binance API error"
	}
	if e.Code != 0 || e.Message != "" {
		return fmt.Sprintf("binance API error %d (code=%d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance API error %d: %s", e.StatusCode, e.Body)
}

func parseAPIError(statusCode int, body []byte) error {
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Code != 0 || parsed.Msg != "") {
		return &APIError{StatusCode: statusCode, Code: parsed.Code, Message: parsed.Msg, Body: string(body)}
	}
	return &APIError{StatusCode: statusCode, Body: string(body)}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (t tickerPrice) value() (float64, error) {
	p, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q for %s: %w", t.Price, t.Symbol, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("non-positive price %v for %s", p, t.Symbol)
	}
	return p, nil
}

// GetPrice returns the last traded price of one futures symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var t tickerPrice
	q := url.Values{"symbol": {strings.ToUpper(symbol)}}
	if err := c.get(ctx, "/fapi/v1/ticker/price", q, &t); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, symbol, err)
	}
	p, err := t.value()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}
	return p, nil
}

// GetPrices fetches every ticker in one request and picks the requested
// symbols. A failed request marks all of them unavailable.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]float64, map[string]error) {
	prices := make(map[string]float64, len(symbols))
	errs := make(map[string]error)

	var all []tickerPrice
	if err := c.get(ctx, "/fapi/v1/ticker/price", nil, &all); err != nil {
		for _, s := range symbols {
			errs[s] = fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, s, err)
		}
		return prices, errs
	}

	bySymbol := make(map[string]tickerPrice, len(all))
	for _, t := range all {
		bySymbol[t.Symbol] = t
	}
	for _, s := range symbols {
		t, ok := bySymbol[strings.ToUpper(s)]
		if !ok {
			errs[s] = fmt.Errorf("%w: %s: not listed", domain.ErrPriceUnavailable, s)
			continue
		}
		p, err := t.value()
		if err != nil {
			errs[s] = fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
			continue
		}
		prices[s] = p
	}
	return prices, errs
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
