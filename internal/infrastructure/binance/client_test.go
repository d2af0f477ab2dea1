package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tracker-backend/internal/domain"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithRateLimit(0, 0))
}

func TestGetPrice(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/ticker/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol query: got %q", got)
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64123.50","time":1700000000000}`))
	})

	p, err := c.GetPrice(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if p != 64123.50 {
		t.Fatalf("got %v", p)
	}
}

func TestGetPrice_APIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.GetPrice(context.Background(), "NOPE")
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestParseAPIError(t *testing.T) {
	err := parseAPIError(400, []byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != -1121 || apiErr.Message != "Invalid symbol." {
		t.Fatalf("unexpected fields: %+v", apiErr)
	}

	err = parseAPIError(502, []byte("bad gateway"))
	if !errors.As(err, &apiErr) || apiErr.Body != "bad gateway" || apiErr.Code != 0 {
		t.Fatalf("unexpected plain error: %v", err)
	}
}

func TestGetPrices_Batch(t *testing.T) {
	calls := 0
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.RawQuery != "" {
			t.Errorf("batch request should not filter by symbol: %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","price":"64000"},
			{"symbol":"ETHUSDT","price":"3100.5"},
			{"symbol":"BADUSDT","price":"abc"}
		]`))
	})

	prices, errs := c.GetPrices(context.Background(), []string{"BTCUSDT", "ETHUSDT", "BADUSDT", "XYZUSDT"})
	if calls != 1 {
		t.Fatalf("want one upstream call, got %d", calls)
	}
	if prices["BTCUSDT"] != 64000 || prices["ETHUSDT"] != 3100.5 {
		t.Fatalf("unexpected prices: %v", prices)
	}
	for _, s := range []string{"BADUSDT", "XYZUSDT"} {
		if !errors.Is(errs[s], domain.ErrPriceUnavailable) {
			t.Fatalf("%s: expected ErrPriceUnavailable, got %v", s, errs[s])
		}
	}
}

func TestGetPrices_UpstreamFailureMarksAll(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	prices, errs := c.GetPrices(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if len(prices) != 0 || len(errs) != 2 {
		t.Fatalf("got prices=%v errs=%v", prices, errs)
	}
}
