package domain

import (
	"errors"
	"testing"
	"time"
)

func longParams() OrderParams {
	return OrderParams{
		Symbol:     "btcusdt",
		Direction:  DirectionLong,
		EntryPrice: 100,
		StopLoss:   95,
		TargetT1:   Float(105),
		TargetT2:   Float(110),
		TargetT3:   Float(115),
	}
}

func shortParams() OrderParams {
	return OrderParams{
		Symbol:     "ETHUSDT",
		Direction:  DirectionShort,
		EntryPrice: 100,
		StopLoss:   105,
		TargetT1:   Float(95),
		TargetT2:   Float(90),
		TargetT3:   Float(85),
	}
}

func TestOrderParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *OrderParams)
		short   bool
		wantErr bool
	}{
		{name: "long ladder", mutate: func(p *OrderParams) {}},
		{name: "short ladder", short: true, mutate: func(p *OrderParams) {}},
		{name: "long without targets", mutate: func(p *OrderParams) { p.TargetT1, p.TargetT2, p.TargetT3 = nil, nil, nil }},
		{name: "long with gap", mutate: func(p *OrderParams) { p.TargetT2 = nil }},
		{name: "long stop above entry", mutate: func(p *OrderParams) { p.StopLoss = 101 }, wantErr: true},
		{name: "long stop equals entry", mutate: func(p *OrderParams) { p.StopLoss = 100 }, wantErr: true},
		{name: "long T1 below entry", mutate: func(p *OrderParams) { p.TargetT1 = Float(99) }, wantErr: true},
		{name: "long T2 below T1", mutate: func(p *OrderParams) { p.TargetT2 = Float(104) }, wantErr: true},
		{name: "long T3 equals T2", mutate: func(p *OrderParams) { p.TargetT3 = Float(110) }, wantErr: true},
		{name: "long T3 below T1 across gap", mutate: func(p *OrderParams) { p.TargetT2 = nil; p.TargetT3 = Float(104) }, wantErr: true},
		{name: "short stop below entry", short: true, mutate: func(p *OrderParams) { p.StopLoss = 99 }, wantErr: true},
		{name: "short T1 above entry", short: true, mutate: func(p *OrderParams) { p.TargetT1 = Float(101) }, wantErr: true},
		{name: "short T2 above T1", short: true, mutate: func(p *OrderParams) { p.TargetT2 = Float(96) }, wantErr: true},
		{name: "zero entry", mutate: func(p *OrderParams) { p.EntryPrice = 0 }, wantErr: true},
		{name: "negative stop", mutate: func(p *OrderParams) { p.StopLoss = -1 }, wantErr: true},
		{name: "empty symbol", mutate: func(p *OrderParams) { p.Symbol = "  " }, wantErr: true},
		{name: "bad direction", mutate: func(p *OrderParams) { p.Direction = "UP" }, wantErr: true},
		{name: "bad risk level", mutate: func(p *OrderParams) { p.RiskLevel = "EXTREME" }, wantErr: true},
		{name: "negative leverage", mutate: func(p *OrderParams) { p.Leverage = -2 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := longParams()
			if tt.short {
				p = shortParams()
			}
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOrderParameters) {
					t.Fatalf("Validate() = %v, want ErrInvalidOrderParameters", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() returned unexpected error: %v", err)
			}
		})
	}
}

func TestNewOrderDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o, err := NewOrder(longParams(), now)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}

	if o.ID == "" {
		t.Error("NewOrder should assign an ID")
	}
	if o.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", o.Symbol)
	}
	if o.Status != StatusOpen {
		t.Errorf("Status = %s, want OPEN", o.Status)
	}
	if o.Leverage != 1 {
		t.Errorf("Leverage = %v, want 1", o.Leverage)
	}
	if o.Interval != "4h" || o.RiskLevel != RiskMedium {
		t.Errorf("defaults = (%q, %q), want (4h, MEDIUM)", o.Interval, o.RiskLevel)
	}
	if o.StopLossPct != 5 {
		t.Errorf("StopLossPct = %v, want 5", o.StopLossPct)
	}
	if !o.OpenedAt.Equal(now) {
		t.Errorf("OpenedAt = %v, want %v", o.OpenedAt, now)
	}
	if err := o.CheckCloseFields(); err != nil {
		t.Errorf("fresh order violates close-field rule: %v", err)
	}
}

func TestNewOrderRejectsInvalid(t *testing.T) {
	p := longParams()
	p.StopLoss = 120
	if _, err := NewOrder(p, time.Now()); !errors.Is(err, ErrInvalidOrderParameters) {
		t.Fatalf("NewOrder error = %v, want ErrInvalidOrderParameters", err)
	}
}

func TestCanTransition(t *testing.T) {
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := from == StatusOpen && to != StatusOpen
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestApplySetsCloseFieldsTogether(t *testing.T) {
	o, err := NewOrder(longParams(), time.Now())
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}

	o.Apply(StatusStopLoss, CloseFields{ClosedAt: time.Now(), ClosedPrice: 94, FinalProfitPct: -6})
	if err := o.CheckCloseFields(); err != nil {
		t.Fatalf("CheckCloseFields after Apply: %v", err)
	}
	if o.IsWin == nil || *o.IsWin {
		t.Errorf("IsWin = %v, want false", o.IsWin)
	}

	o.ClosedPrice = nil
	if err := o.CheckCloseFields(); err == nil {
		t.Error("CheckCloseFields should reject a terminal order with a missing close field")
	}
}

func TestPositionValue(t *testing.T) {
	o := &Order{EntryPrice: 50}
	if _, ok := o.PositionValue(); ok {
		t.Error("PositionValue should be unknown without amount or quantity")
	}
	o.Quantity = Float(2)
	if v, ok := o.PositionValue(); !ok || v != 100 {
		t.Errorf("PositionValue = (%v, %v), want (100, true)", v, ok)
	}
	o.OpenAmount = Float(1000)
	if v, ok := o.PositionValue(); !ok || v != 1000 {
		t.Errorf("PositionValue = (%v, %v), want (1000, true)", v, ok)
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"buy": DirectionLong, "LONG": DirectionLong, "Sell": DirectionShort, "short": DirectionShort} {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = (%s, %v), want %s", in, got, err, want)
		}
	}
	if _, err := ParseDirection("HOLD"); !errors.Is(err, ErrInvalidOrderParameters) {
		t.Errorf("ParseDirection(HOLD) error = %v, want ErrInvalidOrderParameters", err)
	}
}
