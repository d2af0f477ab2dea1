package http

import (
	"encoding/json"
	"net/http"

	"tracker-backend/internal/usecase"
)

// TrackerHandler controls the periodic evaluation scheduler and the
// per-order realtime tracking configs.
type TrackerHandler struct {
	scheduler *usecase.Scheduler
	realtime  *usecase.RealtimeService
}

func NewTrackerHandler(scheduler *usecase.Scheduler, realtime *usecase.RealtimeService) *TrackerHandler {
	return &TrackerHandler{scheduler: scheduler, realtime: realtime}
}

type schedulerResponse struct {
	Changed bool `json:"changed"`
	usecase.SchedulerStatus
}

// Status handles GET /api/profit-tracker/status
func (h *TrackerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// Start handles POST /api/profit-tracker/start
func (h *TrackerHandler) Start(w http.ResponseWriter, r *http.Request) {
	changed := h.scheduler.Start()
	writeJSON(w, http.StatusOK, schedulerResponse{Changed: changed, SchedulerStatus: h.scheduler.Status()})
}

// Stop handles POST /api/profit-tracker/stop
func (h *TrackerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	changed := h.scheduler.Stop()
	writeJSON(w, http.StatusOK, schedulerResponse{Changed: changed, SchedulerStatus: h.scheduler.Status()})
}

type realtimeRequest struct {
	Enabled  *bool  `json:"enabled"`
	Interval string `json:"interval"`
}

// decodeRealtime reads an optional body; an empty body is allowed.
func decodeRealtime(r *http.Request) (realtimeRequest, error) {
	var req realtimeRequest
	if r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, badRequest("invalid request body")
	}
	return req, nil
}

// GetRealtime handles GET /api/realtime/orders/{id}
func (h *TrackerHandler) GetRealtime(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, err := h.realtime.Get(r.Context(), id)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// EnableRealtime handles POST /api/realtime/orders/{id}/enable
func (h *TrackerHandler) EnableRealtime(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := decodeRealtime(r)
	if err != nil {
		writeError(w, err, id)
		return
	}
	cfg, err := h.realtime.Enable(r.Context(), id, req.Interval)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// DisableRealtime handles POST /api/realtime/orders/{id}/disable
func (h *TrackerHandler) DisableRealtime(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg, err := h.realtime.Disable(r.Context(), id)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateRealtime handles PUT /api/realtime/orders/{id}
func (h *TrackerHandler) UpdateRealtime(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := decodeRealtime(r)
	if err != nil {
		writeError(w, err, id)
		return
	}
	cfg, err := h.realtime.Update(r.Context(), id, req.Enabled, req.Interval)
	if err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
