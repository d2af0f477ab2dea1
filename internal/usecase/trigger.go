package usecase

import "tracker-backend/internal/domain"

// EvaluationResult is the profit and trigger state of an order at one price.
type EvaluationResult struct {
	Price               float64       `json:"price"`
	ProfitPct           float64       `json:"profitPct"`
	ProfitAmount        *float64      `json:"profitAmount,omitempty"`
	StopTriggered       bool          `json:"stopTriggered"`
	TakeProfitTriggered bool          `json:"takeProfitTriggered"`
	TriggeredTarget     domain.Target `json:"triggeredTarget,omitempty"`
}

// Triggered reports whether the order should leave OPEN.
func (r EvaluationResult) Triggered() bool {
	return r.StopTriggered || r.TakeProfitTriggered
}

// ProfitPct is the unleveraged move from entry to price, signed by direction.
func ProfitPct(direction domain.Direction, entry, price float64) float64 {
	if direction == domain.DirectionShort {
		return (entry - price) / entry * 100
	}
	return (price - entry) / entry * 100
}

// Evaluate computes profit and trigger state for order at price. It performs
// no I/O. positionValue, when non-nil, scales the percentage into an amount.
//
// A crossed stop is reported on its own even if a target is also crossed.
// Among targets the furthest reached wins.
func Evaluate(order *domain.Order, price float64, positionValue *float64) EvaluationResult {
	res := EvaluationResult{
		Price:     price,
		ProfitPct: ProfitPct(order.Direction, order.EntryPrice, price),
	}
	if positionValue != nil {
		amount := res.ProfitPct / 100 * *positionValue
		res.ProfitAmount = &amount
	}

	if stopHit(order, price) {
		res.StopTriggered = true
		return res
	}

	for _, t := range order.Targets() {
		if targetHit(order.Direction, *t.Price, price) {
			res.TakeProfitTriggered = true
			res.TriggeredTarget = t.Label
		}
	}
	return res
}

// StatusFor maps an evaluation to the status the order should move to.
// Untriggered results map to OPEN.
func StatusFor(r EvaluationResult) domain.OrderStatus {
	if r.StopTriggered {
		return domain.StatusStopLoss
	}
	if r.TakeProfitTriggered {
		if s, ok := domain.TakeProfitStatus(r.TriggeredTarget); ok {
			return s
		}
	}
	return domain.StatusOpen
}

func stopHit(order *domain.Order, price float64) bool {
	if order.StopLoss <= 0 {
		return false
	}
	if order.Direction == domain.DirectionShort {
		return price >= order.StopLoss
	}
	return price <= order.StopLoss
}

func targetHit(direction domain.Direction, target, price float64) bool {
	if direction == domain.DirectionShort {
		return price <= target
	}
	return price >= target
}
