package domain

import "time"

// Tracking interval labels. The scheduled cadences double as the labels of
// the snapshots they produce; IntervalRealtime and IntervalManual tag the
// opt-in high-frequency pass and on-demand evaluations.
const (
	Interval30m      = "30m"
	Interval1h       = "1h"
	Interval2h       = "2h"
	Interval4h       = "4h"
	Interval6h       = "6h"
	IntervalRealtime = "realtime"
	IntervalManual   = "manual"
)

// ScheduledIntervals are the cadences run by default, fastest first.
var ScheduledIntervals = []string{Interval30m, Interval1h, Interval2h, Interval4h, Interval6h}

// KlineIntervals are the labels accepted for per-order realtime tracking.
var KlineIntervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d"}

// IsKlineInterval reports whether s is an accepted realtime tracking label.
func IsKlineInterval(s string) bool {
	for _, k := range KlineIntervals {
		if k == s {
			return true
		}
	}
	return false
}

// ProfitSnapshot is one recorded price/profit observation of an order.
type ProfitSnapshot struct {
	ID                  int64     `json:"id"`
	OrderID             string    `json:"orderId"`
	Price               float64   `json:"price"`
	ProfitPct           float64   `json:"profitPct"`
	ProfitAmount        *float64  `json:"profitAmount,omitempty"`
	Interval            string    `json:"interval"`
	StopTriggered       bool      `json:"stopTriggered"`
	TakeProfitTriggered bool      `json:"takeProfitTriggered"`
	TriggeredTarget     Target    `json:"triggeredTarget,omitempty"`
	RecordedAt          time.Time `json:"recordedAt"`
}

// Transition is a guarded status change: it only applies while the order is
// still in Expected.
type Transition struct {
	OrderID  string      `json:"orderId"`
	Expected OrderStatus `json:"expected"`
	Next     OrderStatus `json:"next"`
	Close    CloseFields `json:"close"`
}

// TrackingConfig is the per-order opt-in for high-frequency tracking.
type TrackingConfig struct {
	OrderID   string    `json:"orderId"`
	Enabled   bool      `json:"enabled"`
	Interval  string    `json:"interval"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultRealtimeInterval is the kline label a freshly enabled config uses.
const DefaultRealtimeInterval = "1m"
