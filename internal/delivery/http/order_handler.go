package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"tracker-backend/internal/domain"
	"tracker-backend/internal/usecase"
)

// OrderHandler serves order CRUD and on-demand evaluation.
type OrderHandler struct {
	tracking *usecase.TrackingService
}

func NewOrderHandler(tracking *usecase.TrackingService) *OrderHandler {
	return &OrderHandler{tracking: tracking}
}

// Create handles POST /api/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p domain.OrderParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, badRequest("invalid request body"), "")
		return
	}
	if p.Direction != "" {
		d, err := domain.ParseDirection(string(p.Direction))
		if err != nil {
			writeError(w, err, "")
			return
		}
		p.Direction = d
	}

	order, err := h.tracking.CreateOrder(r.Context(), p)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// List handles GET /api/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Symbol:    strings.ToUpper(q.Get("symbol")),
		Status:    domain.OrderStatus(strings.ToUpper(q.Get("status"))),
		Direction: domain.Direction(strings.ToUpper(q.Get("direction"))),
		RiskLevel: domain.RiskLevel(strings.ToUpper(q.Get("risk_level"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, badRequest("unknown status %q", filter.Status), "")
		return
	}

	var err error
	if filter.From, err = queryDate(r, "start_date", false); err != nil {
		writeError(w, err, "")
		return
	}
	if filter.To, err = queryDate(r, "end_date", true); err != nil {
		writeError(w, err, "")
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 50); err != nil {
		writeError(w, err, "")
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, err, "")
		return
	}

	page, err := h.tracking.ListOrders(r.Context(), filter)
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := h.tracking.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Close handles DELETE /api/orders/{id}?closed_price=
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	price, err := queryFloat(r, "closed_price")
	if err != nil {
		writeError(w, err, id)
		return
	}

	order, err := h.tracking.Close(r.Context(), id, price)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CalculateProfit handles POST /api/orders/{id}/calculate-profit
func (h *OrderHandler) CalculateProfit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = domain.IntervalManual
	}

	ev, err := h.tracking.EvaluateOne(r.Context(), id, interval)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type batchResponse struct {
	Interval  string            `json:"interval"`
	Evaluated int               `json:"evaluated"`
	Failed    int               `json:"failed"`
	Triggered int               `json:"triggered"`
	Outcomes  []usecase.Outcome `json:"outcomes"`
}

// CalculateAll handles POST /api/orders/calculate-all-profits
func (h *OrderHandler) CalculateAll(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = domain.IntervalManual
	}

	outcomes, err := h.tracking.EvaluateAll(r.Context(), interval)
	if err != nil {
		writeError(w, err, "")
		return
	}

	resp := batchResponse{Interval: interval, Outcomes: outcomes}
	for _, o := range outcomes {
		if !o.OK() {
			resp.Failed++
			continue
		}
		resp.Evaluated++
		if o.Evaluation.Applied {
			resp.Triggered++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Profits handles GET /api/orders/{id}/profits?interval=
func (h *OrderHandler) Profits(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	history, err := h.tracking.ProfitHistory(r.Context(), id, r.URL.Query().Get("interval"))
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
