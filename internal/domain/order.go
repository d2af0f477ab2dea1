package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction is the side of a tracked position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ParseDirection accepts LONG/SHORT and the BUY/SELL recommendation labels.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return DirectionLong, nil
	case "SHORT", "SELL":
		return DirectionShort, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidOrderParameters, s)
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusOpen         OrderStatus = "OPEN"
	StatusStopLoss     OrderStatus = "STOP_LOSS"
	StatusTakeProfitT1 OrderStatus = "TAKE_PROFIT_T1"
	StatusTakeProfitT2 OrderStatus = "TAKE_PROFIT_T2"
	StatusTakeProfitT3 OrderStatus = "TAKE_PROFIT_T3"
	StatusClosed       OrderStatus = "CLOSED"
)

// AllStatuses lists every status in display order.
var AllStatuses = []OrderStatus{
	StatusOpen, StatusStopLoss, StatusTakeProfitT1, StatusTakeProfitT2, StatusTakeProfitT3, StatusClosed,
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusStopLoss, StatusTakeProfitT1, StatusTakeProfitT2, StatusTakeProfitT3, StatusClosed:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return s == StatusOpen || s.IsTerminal()
}

// CanTransition reports whether from -> to is an edge of the order state
// machine. Only OPEN has outgoing edges, and every edge ends in a terminal
// status.
func CanTransition(from, to OrderStatus) bool {
	return from == StatusOpen && to.IsTerminal()
}

// Target labels a take-profit level.
type Target string

const (
	TargetNone Target = ""
	TargetT1   Target = "T1"
	TargetT2   Target = "T2"
	TargetT3   Target = "T3"
)

// TakeProfitStatus maps a reached target to its terminal status.
func TakeProfitStatus(t Target) (OrderStatus, bool) {
	switch t {
	case TargetT1:
		return StatusTakeProfitT1, true
	case TargetT2:
		return StatusTakeProfitT2, true
	case TargetT3:
		return StatusTakeProfitT3, true
	}
	return "", false
}

// RiskLevel is the advisory risk label carried over from the analysis that
// produced the order.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Order represents a tracked hypothetical position.
type Order struct {
	ID              string      `json:"id"`
	Symbol          string      `json:"symbol"`
	Interval        string      `json:"interval"`
	Direction       Direction   `json:"direction"`
	RiskLevel       RiskLevel   `json:"riskLevel"`
	EntryPrice      float64     `json:"entryPrice"`
	StopLoss        float64     `json:"stopLoss"`
	StopLossPct     float64     `json:"stopLossPct"`
	TargetT1        *float64    `json:"targetT1,omitempty"`
	TargetT2        *float64    `json:"targetT2,omitempty"`
	TargetT3        *float64    `json:"targetT3,omitempty"`
	Leverage        float64     `json:"leverage"`
	Quantity        *float64    `json:"quantity,omitempty"`
	OpenAmount      *float64    `json:"openAmount,omitempty"`
	PositionSizePct *float64    `json:"positionSizePct,omitempty"`
	Summary         string      `json:"summary"`
	OpenedAt        time.Time   `json:"openedAt"`
	Status          OrderStatus `json:"status"`
	ClosedAt        *time.Time  `json:"closedAt,omitempty"`
	ClosedPrice     *float64    `json:"closedPrice,omitempty"`
	FinalProfitPct  *float64    `json:"finalProfitPct,omitempty"`
	IsWin           *bool       `json:"isWin,omitempty"`
}

// OrderParams carries the caller-supplied fields of a new order.
type OrderParams struct {
	Symbol          string    `json:"symbol"`
	Interval        string    `json:"interval"`
	Direction       Direction `json:"direction"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	EntryPrice      float64   `json:"entryPrice"`
	StopLoss        float64   `json:"stopLoss"`
	TargetT1        *float64  `json:"targetT1,omitempty"`
	TargetT2        *float64  `json:"targetT2,omitempty"`
	TargetT3        *float64  `json:"targetT3,omitempty"`
	Leverage        float64   `json:"leverage"`
	Quantity        *float64  `json:"quantity,omitempty"`
	OpenAmount      *float64  `json:"openAmount,omitempty"`
	PositionSizePct *float64  `json:"positionSizePct,omitempty"`
	Summary         string    `json:"summary"`
}

// NewOrder validates params and builds an OPEN order stamped at now.
func NewOrder(p OrderParams, now time.Time) (*Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	o := &Order{
		ID:              uuid.NewString(),
		Symbol:          strings.ToUpper(strings.TrimSpace(p.Symbol)),
		Interval:        p.Interval,
		Direction:       p.Direction,
		RiskLevel:       p.RiskLevel,
		EntryPrice:      p.EntryPrice,
		StopLoss:        p.StopLoss,
		TargetT1:        copyFloat(p.TargetT1),
		TargetT2:        copyFloat(p.TargetT2),
		TargetT3:        copyFloat(p.TargetT3),
		Leverage:        p.Leverage,
		Quantity:        copyFloat(p.Quantity),
		OpenAmount:      copyFloat(p.OpenAmount),
		PositionSizePct: copyFloat(p.PositionSizePct),
		Summary:         p.Summary,
		OpenedAt:        now,
		Status:          StatusOpen,
	}
	if o.Interval == "" {
		o.Interval = "4h"
	}
	if o.RiskLevel == "" {
		o.RiskLevel = RiskMedium
	}
	if o.Leverage == 0 {
		o.Leverage = 1
	}
	if o.Summary == "" {
		o.Summary = "manual order"
	}

	// Distance from entry to stop, positive for a well-formed order.
	if o.Direction == DirectionLong {
		o.StopLossPct = (o.EntryPrice - o.StopLoss) / o.EntryPrice * 100
	} else {
		o.StopLossPct = (o.StopLoss - o.EntryPrice) / o.EntryPrice * 100
	}
	return o, nil
}

// Validate enforces the creation-time price ladder:
// LONG stop < entry < T1 < T2 < T3, SHORT the mirror image. Missing targets
// are skipped but the present ones must stay strictly ordered.
func (p OrderParams) Validate() error {
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrderParameters)
	}
	if p.Direction != DirectionLong && p.Direction != DirectionShort {
		return fmt.Errorf("%w: direction must be LONG or SHORT, got %q", ErrInvalidOrderParameters, p.Direction)
	}
	switch p.RiskLevel {
	case "", RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("%w: unknown risk level %q", ErrInvalidOrderParameters, p.RiskLevel)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", ErrInvalidOrderParameters)
	}
	if p.StopLoss <= 0 {
		return fmt.Errorf("%w: stop loss must be positive", ErrInvalidOrderParameters)
	}
	if p.Leverage < 0 {
		return fmt.Errorf("%w: leverage must not be negative", ErrInvalidOrderParameters)
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidOrderParameters)
	}
	if p.OpenAmount != nil && *p.OpenAmount < 0 {
		return fmt.Errorf("%w: open amount must not be negative", ErrInvalidOrderParameters)
	}

	// Walk the ladder outward from the stop; each rung must be strictly
	// further in the profitable direction than the previous one.
	ladder := []struct {
		name  string
		price *float64
	}{
		{"stop loss", &p.StopLoss},
		{"entry price", &p.EntryPrice},
		{"target T1", p.TargetT1},
		{"target T2", p.TargetT2},
		{"target T3", p.TargetT3},
	}
	prevName, prev := "", 0.0
	for _, rung := range ladder {
		if rung.price == nil {
			continue
		}
		v := *rung.price
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidOrderParameters, rung.name)
		}
		if prevName != "" {
			ordered := v > prev
			if p.Direction == DirectionShort {
				ordered = v < prev
			}
			if !ordered {
				rel := "above"
				if p.Direction == DirectionShort {
					rel = "below"
				}
				return fmt.Errorf("%w: %s order requires %s (%v) %s %s (%v)",
					ErrInvalidOrderParameters, p.Direction, rung.name, v, rel, prevName, prev)
			}
		}
		prevName, prev = rung.name, v
	}
	return nil
}

// Targets returns the configured take-profit prices in T1, T2, T3 order,
// skipping unset levels.
func (o *Order) Targets() []TargetPrice {
	out := make([]TargetPrice, 0, 3)
	for _, t := range []TargetPrice{{TargetT1, o.TargetT1}, {TargetT2, o.TargetT2}, {TargetT3, o.TargetT3}} {
		if t.Price != nil && *t.Price > 0 {
			out = append(out, t)
		}
	}
	return out
}

// TargetPrice pairs a target label with its price.
type TargetPrice struct {
	Label Target
	Price *float64
}

// PositionValue is the notional used to turn a profit percentage into an
// amount: the open amount when set, otherwise entry price times quantity.
func (o *Order) PositionValue() (float64, bool) {
	if o.OpenAmount != nil && *o.OpenAmount > 0 {
		return *o.OpenAmount, true
	}
	if o.Quantity != nil && *o.Quantity > 0 && o.EntryPrice > 0 {
		return o.EntryPrice * *o.Quantity, true
	}
	return 0, false
}

// IsOpen reports whether the order is still tracked.
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen
}

// CloseFields are stamped onto an order when it reaches a terminal status.
type CloseFields struct {
	ClosedAt       time.Time `json:"closedAt"`
	ClosedPrice    float64   `json:"closedPrice"`
	FinalProfitPct float64   `json:"finalProfitPct"`
}

// IsWin is derived from the final profit: strictly positive wins.
func (c CloseFields) IsWin() bool {
	return c.FinalProfitPct > 0
}

// Apply moves the order into status with the close fields set together.
func (o *Order) Apply(status OrderStatus, c CloseFields) {
	closedAt, price, pct, win := c.ClosedAt, c.ClosedPrice, c.FinalProfitPct, c.IsWin()
	o.Status = status
	o.ClosedAt = &closedAt
	o.ClosedPrice = &price
	o.FinalProfitPct = &pct
	o.IsWin = &win
}

// CheckCloseFields verifies the all-or-nothing rule between status and the
// close fields.
func (o *Order) CheckCloseFields() error {
	set := 0
	if o.ClosedAt != nil {
		set++
	}
	if o.ClosedPrice != nil {
		set++
	}
	if o.FinalProfitPct != nil {
		set++
	}
	switch {
	case o.Status.IsTerminal() && set != 3:
		return fmt.Errorf("order %s: terminal status %s with %d of 3 close fields", o.ID, o.Status, set)
	case !o.Status.IsTerminal() && set != 0:
		return fmt.Errorf("order %s: status %s with %d close fields set", o.ID, o.Status, set)
	}
	return nil
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (o *Order) Clone() *Order {
	c := *o
	c.TargetT1 = copyFloat(o.TargetT1)
	c.TargetT2 = copyFloat(o.TargetT2)
	c.TargetT3 = copyFloat(o.TargetT3)
	c.Quantity = copyFloat(o.Quantity)
	c.OpenAmount = copyFloat(o.OpenAmount)
	c.PositionSizePct = copyFloat(o.PositionSizePct)
	c.ClosedPrice = copyFloat(o.ClosedPrice)
	c.FinalProfitPct = copyFloat(o.FinalProfitPct)
	if o.ClosedAt != nil {
		t := *o.ClosedAt
		c.ClosedAt = &t
	}
	if o.IsWin != nil {
		w := *o.IsWin
		c.IsWin = &w
	}
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
