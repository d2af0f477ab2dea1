package domain

import "time"

// WinRateStats summarises terminal orders. Rate is nil when no order has
// closed yet.
type WinRateStats struct {
	Wins   int      `json:"wins"`
	Losses int      `json:"losses"`
	Rate   *float64 `json:"rate"`
}

// CurvePoint is one day of the cumulative profit curve.
type CurvePoint struct {
	Date                   string  `json:"date"`
	DailyProfitPct         float64 `json:"dailyProfitPct"`
	DailyProfitAmount      float64 `json:"dailyProfitAmount"`
	CumulativeProfitPct    float64 `json:"cumulativeProfitPct"`
	CumulativeProfitAmount float64 `json:"cumulativeProfitAmount"`
	OrderCount             int     `json:"orderCount"`
	WinCount               int     `json:"winCount"`
	PositionValue          float64 `json:"positionValue"`
}

// ProfitCurve is the day-by-day cumulative profit over a window.
type ProfitCurve struct {
	Symbol            string       `json:"symbol"`
	From              time.Time    `json:"from"`
	To                time.Time    `json:"to"`
	TotalProfitPct    float64      `json:"totalProfitPct"`
	TotalProfitAmount float64      `json:"totalProfitAmount"`
	Points            []CurvePoint `json:"points"`
}

// IntervalStat aggregates snapshots sharing a tracking interval label.
type IntervalStat struct {
	Interval        string  `json:"interval"`
	Count           int     `json:"count"`
	AvgProfitPct    float64 `json:"avgProfitPct"`
	StopLossCount   int     `json:"stopLossCount"`
	TakeProfitCount int     `json:"takeProfitCount"`
}

// SymbolStats is the per-symbol dashboard row.
type SymbolStats struct {
	Symbol         string   `json:"symbol"`
	TotalOrders    int      `json:"totalOrders"`
	OpenOrders     int      `json:"openOrders"`
	ClosedOrders   int      `json:"closedOrders"`
	WinCount       int      `json:"winCount"`
	LossCount      int      `json:"lossCount"`
	TotalProfitPct float64  `json:"totalProfitPct"`
	WinRate        *float64 `json:"winRate"`
}

// Dashboard is the overview across all orders.
type Dashboard struct {
	TotalProfitPct float64       `json:"totalProfitPct"`
	TotalOrders    int           `json:"totalOrders"`
	OpenOrders     int           `json:"openOrders"`
	ClosedOrders   int           `json:"closedOrders"`
	WinCount       int           `json:"winCount"`
	LossCount      int           `json:"lossCount"`
	WinRate        *float64      `json:"winRate"`
	Symbols        []SymbolStats `json:"symbols"`
}

// DailyProfit is the closed-order total for one calendar day.
type DailyProfit struct {
	Date        string  `json:"date"`
	TotalProfit float64 `json:"totalProfit"`
	OrderCount  int     `json:"orderCount"`
	WinCount    int     `json:"winCount"`
}

// SymbolCount pairs a symbol with its number of orders.
type SymbolCount struct {
	Symbol     string `json:"symbol"`
	OrderCount int    `json:"orderCount"`
}

// TakeProfitBreakdown counts and sums closes per reached target.
type TakeProfitBreakdown struct {
	T1Count    int     `json:"t1Count"`
	T1TotalPct float64 `json:"t1TotalPct"`
	T2Count    int     `json:"t2Count"`
	T2TotalPct float64 `json:"t2TotalPct"`
	T3Count    int     `json:"t3Count"`
	T3TotalPct float64 `json:"t3TotalPct"`
}

// StopLossBreakdown counts and sums stop-loss closes.
type StopLossBreakdown struct {
	Count    int     `json:"count"`
	TotalPct float64 `json:"totalPct"`
}

// PriceExtremes are the lowest and highest observed snapshot prices.
type PriceExtremes struct {
	Low      float64   `json:"low"`
	LowTime  time.Time `json:"lowTime"`
	High     float64   `json:"high"`
	HighTime time.Time `json:"highTime"`
}

// OrderSummary is the compact order row of the analytics view.
type OrderSummary struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Direction      Direction   `json:"direction"`
	Status         OrderStatus `json:"status"`
	EntryPrice     float64     `json:"entryPrice"`
	ClosedPrice    *float64    `json:"closedPrice,omitempty"`
	FinalProfitPct *float64    `json:"finalProfitPct,omitempty"`
	OpenedAt       time.Time   `json:"openedAt"`
	ClosedAt       *time.Time  `json:"closedAt,omitempty"`
}

// Analytics is the period report of the profit-analytics view.
type Analytics struct {
	Period         string              `json:"period"`
	Symbol         string              `json:"symbol,omitempty"`
	From           *time.Time          `json:"from,omitempty"`
	To             *time.Time          `json:"to,omitempty"`
	TotalOrders    int                 `json:"totalOrders"`
	OpenOrders     int                 `json:"openOrders"`
	ClosedOrders   int                 `json:"closedOrders"`
	WinCount       int                 `json:"winCount"`
	LossCount      int                 `json:"lossCount"`
	TotalProfitPct float64             `json:"totalProfitPct"`
	AvgProfitPct   float64             `json:"avgProfitPct"`
	WinRate        *float64            `json:"winRate"`
	TakeProfit     TakeProfitBreakdown `json:"takeProfit"`
	StopLoss       StopLossBreakdown   `json:"stopLoss"`
	PriceExtremes  *PriceExtremes      `json:"priceExtremes,omitempty"`
	Orders         []OrderSummary      `json:"orders"`
}
