package http

import (
	"net/http"
	"strings"

	"tracker-backend/internal/domain"
	"tracker-backend/internal/usecase"
)

// DashboardHandler serves the read-only reporting endpoints.
type DashboardHandler struct {
	agg *usecase.AggregationService
}

func NewDashboardHandler(agg *usecase.AggregationService) *DashboardHandler {
	return &DashboardHandler{agg: agg}
}

// Summary handles GET /api/dashboard
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	d, err := h.agg.Dashboard(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DailyProfit handles GET /api/dashboard/daily-profit?days=
func (h *DashboardHandler) DailyProfit(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7)
	if err != nil {
		writeError(w, err, "")
		return
	}
	out, err := h.agg.DailyProfit(r.Context(), days)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ProfitCurve handles GET /api/dashboard/profit-curve?days=&symbol=&start_date=&end_date=
func (h *DashboardHandler) ProfitCurve(w http.ResponseWriter, r *http.Request) {
	q := usecase.CurveQuery{Symbol: strings.ToUpper(r.URL.Query().Get("symbol"))}
	var err error
	if q.Days, err = queryInt(r, "days", 0); err != nil {
		writeError(w, err, "")
		return
	}
	if q.From, err = queryDate(r, "start_date", false); err != nil {
		writeError(w, err, "")
		return
	}
	if q.To, err = queryDate(r, "end_date", false); err != nil {
		writeError(w, err, "")
		return
	}

	curve, err := h.agg.ProfitCurve(r.Context(), q)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

// IntervalStats handles GET /api/dashboard/interval-stats?symbol=&order_id=
func (h *DashboardHandler) IntervalStats(w http.ResponseWriter, r *http.Request) {
	filter := domain.SnapshotFilter{
		Symbol:  strings.ToUpper(r.URL.Query().Get("symbol")),
		OrderID: r.URL.Query().Get("order_id"),
	}
	stats, err := h.agg.IntervalStats(r.Context(), filter)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AvailableSymbols handles GET /api/dashboard/available-symbols
func (h *DashboardHandler) AvailableSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.agg.AvailableSymbols(r.Context())
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

// WinRate handles GET /api/dashboard/win-rate?symbol=
func (h *DashboardHandler) WinRate(w http.ResponseWriter, r *http.Request) {
	filter := domain.ClosedOrderFilter{Symbol: strings.ToUpper(r.URL.Query().Get("symbol"))}
	stats, err := h.agg.WinRate(r.Context(), filter)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Analytics handles GET /api/profit-analytics?period=&symbol=&start_date=&end_date=
func (h *DashboardHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	q := usecase.AnalyticsQuery{
		Period: r.URL.Query().Get("period"),
		Symbol: strings.ToUpper(r.URL.Query().Get("symbol")),
	}
	var err error
	if q.From, err = queryDate(r, "start_date", false); err != nil {
		writeError(w, err, "")
		return
	}
	if q.To, err = queryDate(r, "end_date", true); err != nil {
		writeError(w, err, "")
		return
	}

	a, err := h.agg.Analytics(r.Context(), q)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
