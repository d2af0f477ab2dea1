package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tracker-backend/internal/domain"
	"tracker-backend/internal/usecase"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error   string `json:"error"`
	OrderID string `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrTrackingConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderAlreadyClosed), errors.Is(err, domain.ErrConcurrentTransitionLost):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrderParameters):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPriceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, usecase.ErrPushDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, usecase.ErrNoDevices):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error, orderID string) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), OrderID: orderID})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidOrderParameters, fmt.Sprintf(format, args...))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, badRequest("%s must be a number", key)
	}
	return &f, nil
}

// queryDate parses a YYYY-MM-DD parameter as a UTC midnight. endOfDay moves
// it to the last instant of that day.
func queryDate(r *http.Request, key string, endOfDay bool) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, badRequest("%s must be YYYY-MM-DD", key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
