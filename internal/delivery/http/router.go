package http

import (
	"log/slog"
	"net/http"
	"time"
)

// Handlers bundles everything the router mounts. Metrics and Websocket are
// optional.
type Handlers struct {
	Orders    *OrderHandler
	Dashboard *DashboardHandler
	Tracker   *TrackerHandler
	Tokens    *TokenHandler
	Websocket http.HandlerFunc
	Metrics   http.Handler
}

// NewRouter registers every API route on a ServeMux and wraps it with
// request logging.
func NewRouter(h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/orders", h.Orders.Create)
	mux.HandleFunc("GET /api/orders", h.Orders.List)
	mux.HandleFunc("POST /api/orders/calculate-all-profits", h.Orders.CalculateAll)
	mux.HandleFunc("GET /api/orders/{id}", h.Orders.Get)
	mux.HandleFunc("DELETE /api/orders/{id}", h.Orders.Close)
	mux.HandleFunc("POST /api/orders/{id}/calculate-profit", h.Orders.CalculateProfit)
	mux.HandleFunc("GET /api/orders/{id}/profits", h.Orders.Profits)

	mux.HandleFunc("GET /api/dashboard", h.Dashboard.Summary)
	mux.HandleFunc("GET /api/dashboard/daily-profit", h.Dashboard.DailyProfit)
	mux.HandleFunc("GET /api/dashboard/profit-curve", h.Dashboard.ProfitCurve)
	mux.HandleFunc("GET /api/dashboard/interval-stats", h.Dashboard.IntervalStats)
	mux.HandleFunc("GET /api/dashboard/available-symbols", h.Dashboard.AvailableSymbols)
	mux.HandleFunc("GET /api/dashboard/win-rate", h.Dashboard.WinRate)
	mux.HandleFunc("GET /api/profit-analytics", h.Dashboard.Analytics)

	mux.HandleFunc("GET /api/profit-tracker/status", h.Tracker.Status)
	mux.HandleFunc("POST /api/profit-tracker/start", h.Tracker.Start)
	mux.HandleFunc("POST /api/profit-tracker/stop", h.Tracker.Stop)

	mux.HandleFunc("GET /api/realtime/orders/{id}", h.Tracker.GetRealtime)
	mux.HandleFunc("PUT /api/realtime/orders/{id}", h.Tracker.UpdateRealtime)
	mux.HandleFunc("POST /api/realtime/orders/{id}/enable", h.Tracker.EnableRealtime)
	mux.HandleFunc("POST /api/realtime/orders/{id}/disable", h.Tracker.DisableRealtime)

	mux.HandleFunc("POST /api/notifications/register", h.Tokens.HandleRegisterToken)
	mux.HandleFunc("POST /api/notifications/unregister", h.Tokens.HandleUnregisterToken)
	mux.HandleFunc("GET /api/notifications/count", h.Tokens.HandleGetTokenCount)
	mux.HandleFunc("POST /api/notifications/test", h.Tokens.HandleSendTest)

	if h.Websocket != nil {
		mux.HandleFunc("GET /ws", h.Websocket)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	return logRequests(mux, logger.With("component", "http"))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
