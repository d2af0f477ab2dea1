package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"tracker-backend/internal/domain"
)

const (
	dateLayout          = "2006-01-02"
	day                 = 24 * time.Hour
	defaultCurveDays    = 30
	maxCurveDays        = 3660
	analyticsOrderLimit = 50
)

// Analytics periods.
const (
	PeriodToday  = "today"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodAll    = "all"
	PeriodCustom = "custom"
)

// CurveQuery selects the window of a profit curve. Days are UTC calendar
// days and both ends are inclusive. When From is zero the window is the
// Days (default 30) days ending at To (default today).
type CurveQuery struct {
	Symbol string
	From   time.Time
	To     time.Time
	Days   int
}

// AnalyticsQuery selects the orders of a profit-analytics report. From and
// To are only read for PeriodCustom.
type AnalyticsQuery struct {
	Period string
	Symbol string
	From   time.Time
	To     time.Time
}

// AggregationService computes read-only reporting views over stored orders
// and snapshots.
type AggregationService struct {
	store domain.OrderStore
	now   func() time.Time
}

func NewAggregationService(store domain.OrderStore, now func() time.Time) *AggregationService {
	if now == nil {
		now = time.Now
	}
	return &AggregationService{store: store, now: now}
}

// WinRate counts wins and losses among terminal orders. Rate stays nil when
// nothing has closed.
func (s *AggregationService) WinRate(ctx context.Context, filter domain.ClosedOrderFilter) (*domain.WinRateStats, error) {
	orders, err := s.store.ListClosedOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("win rate: %w", err)
	}
	stats := &domain.WinRateStats{}
	for _, o := range orders {
		if isWin(o) {
			stats.Wins++
		} else {
			stats.Losses++
		}
	}
	stats.Rate = winRate(stats.Wins, stats.Losses)
	return stats, nil
}

// ProfitCurve sums closed-order profit per UTC closing day and accumulates
// it. Every day of the window appears, with zero contribution when nothing
// closed.
func (s *AggregationService) ProfitCurve(ctx context.Context, q CurveQuery) (*domain.ProfitCurve, error) {
	from, to := s.curveWindow(q)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: curve window ends before it starts", domain.ErrInvalidOrderParameters)
	}
	if n := int(to.Sub(from)/day) + 1; n > maxCurveDays {
		return nil, fmt.Errorf("%w: curve window of %d days exceeds %d", domain.ErrInvalidOrderParameters, n, maxCurveDays)
	}

	orders, err := s.store.ListClosedOrders(ctx, domain.ClosedOrderFilter{Symbol: q.Symbol, From: from, To: to.Add(day)})
	if err != nil {
		return nil, fmt.Errorf("profit curve: %w", err)
	}

	byDay := make(map[string]*domain.CurvePoint)
	for _, o := range orders {
		key := o.ClosedAt.UTC().Format(dateLayout)
		p := byDay[key]
		if p == nil {
			p = &domain.CurvePoint{Date: key}
			byDay[key] = p
		}
		pct := *o.FinalProfitPct
		p.DailyProfitPct += pct
		if v, ok := o.PositionValue(); ok {
			p.DailyProfitAmount += v * pct / 100
			p.PositionValue += v
		}
		p.OrderCount++
		if isWin(o) {
			p.WinCount++
		}
	}

	curve := &domain.ProfitCurve{Symbol: q.Symbol, From: from, To: to, Points: []domain.CurvePoint{}}
	var cumPct, cumAmount float64
	for d := from; !d.After(to); d = d.Add(day) {
		key := d.Format(dateLayout)
		point := domain.CurvePoint{Date: key}
		if p, ok := byDay[key]; ok {
			point = *p
		}
		cumPct += point.DailyProfitPct
		cumAmount += point.DailyProfitAmount
		point.CumulativeProfitPct = cumPct
		point.CumulativeProfitAmount = cumAmount
		curve.Points = append(curve.Points, point)
	}
	curve.TotalProfitPct = cumPct
	curve.TotalProfitAmount = cumAmount
	return curve, nil
}

func (s *AggregationService) curveWindow(q CurveQuery) (time.Time, time.Time) {
	to := q.To
	if to.IsZero() {
		to = s.now()
	}
	to = startOfDay(to)
	if !q.From.IsZero() {
		return startOfDay(q.From), to
	}
	days := q.Days
	if days <= 0 {
		days = defaultCurveDays
	}
	return to.Add(-time.Duration(days-1) * day), to
}

// IntervalStats groups snapshots by their interval label. Scheduled cadences
// come first in cadence order, other labels follow alphabetically.
func (s *AggregationService) IntervalStats(ctx context.Context, filter domain.SnapshotFilter) ([]domain.IntervalStat, error) {
	snaps, err := s.store.ListSnapshots(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("interval stats: %w", err)
	}

	groups := make(map[string]*domain.IntervalStat)
	sums := make(map[string]float64)
	for _, sn := range snaps {
		g := groups[sn.Interval]
		if g == nil {
			g = &domain.IntervalStat{Interval: sn.Interval}
			groups[sn.Interval] = g
		}
		g.Count++
		sums[sn.Interval] += sn.ProfitPct
		if sn.StopTriggered {
			g.StopLossCount++
		}
		if sn.TakeProfitTriggered {
			g.TakeProfitCount++
		}
	}

	out := make([]domain.IntervalStat, 0, len(groups))
	for label, g := range groups {
		g.AvgProfitPct = sums[label] / float64(g.Count)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := cadenceRank(out[i].Interval), cadenceRank(out[j].Interval)
		if ri != rj {
			return ri < rj
		}
		return out[i].Interval < out[j].Interval
	})
	return out, nil
}

func cadenceRank(label string) int {
	for i, l := range domain.ScheduledIntervals {
		if l == label {
			return i
		}
	}
	return len(domain.ScheduledIntervals)
}

// Dashboard summarises every order, overall and per symbol.
func (s *AggregationService) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	orders, _, err := s.store.ListOrders(ctx, domain.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	d := &domain.Dashboard{Symbols: []domain.SymbolStats{}}
	perSymbol := make(map[string]*domain.SymbolStats)
	for _, o := range orders {
		st := perSymbol[o.Symbol]
		if st == nil {
			st = &domain.SymbolStats{Symbol: o.Symbol}
			perSymbol[o.Symbol] = st
		}
		st.TotalOrders++
		d.TotalOrders++
		if o.IsOpen() {
			st.OpenOrders++
			d.OpenOrders++
			continue
		}
		st.ClosedOrders++
		d.ClosedOrders++
		if o.FinalProfitPct != nil {
			st.TotalProfitPct += *o.FinalProfitPct
			d.TotalProfitPct += *o.FinalProfitPct
		}
		if isWin(o) {
			st.WinCount++
			d.WinCount++
		} else {
			st.LossCount++
			d.LossCount++
		}
	}

	for _, st := range perSymbol {
		st.WinRate = winRate(st.WinCount, st.LossCount)
		d.Symbols = append(d.Symbols, *st)
	}
	sort.Slice(d.Symbols, func(i, j int) bool { return d.Symbols[i].Symbol < d.Symbols[j].Symbol })
	d.WinRate = winRate(d.WinCount, d.LossCount)
	return d, nil
}

// DailyProfit returns closed-order totals for the last days days, oldest
// first, including days without closes.
func (s *AggregationService) DailyProfit(ctx context.Context, days int) ([]domain.DailyProfit, error) {
	curve, err := s.ProfitCurve(ctx, CurveQuery{Days: days})
	if err != nil {
		return nil, err
	}
	out := make([]domain.DailyProfit, 0, len(curve.Points))
	for _, p := range curve.Points {
		out = append(out, domain.DailyProfit{
			Date:        p.Date,
			TotalProfit: p.DailyProfitPct,
			OrderCount:  p.OrderCount,
			WinCount:    p.WinCount,
		})
	}
	return out, nil
}

// AvailableSymbols lists every symbol with its order count, busiest first.
func (s *AggregationService) AvailableSymbols(ctx context.Context) ([]domain.SymbolCount, error) {
	orders, _, err := s.store.ListOrders(ctx, domain.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("available symbols: %w", err)
	}
	counts := make(map[string]int)
	for _, o := range orders {
		counts[o.Symbol]++
	}
	out := make([]domain.SymbolCount, 0, len(counts))
	for sym, n := range counts {
		out = append(out, domain.SymbolCount{Symbol: sym, OrderCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderCount != out[j].OrderCount {
			return out[i].OrderCount > out[j].OrderCount
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

// Analytics reports on the orders opened within a period: outcome counts,
// take-profit and stop-loss breakdowns, price extremes seen by the tracker
// and the most recent orders.
func (s *AggregationService) Analytics(ctx context.Context, q AnalyticsQuery) (*domain.Analytics, error) {
	period := strings.ToLower(q.Period)
	if period == "" {
		period = PeriodMonth
	}
	from, to, err := s.periodWindow(period, q.From, q.To)
	if err != nil {
		return nil, err
	}

	orders, _, err := s.store.ListOrders(ctx, domain.OrderFilter{Symbol: q.Symbol, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}

	a := &domain.Analytics{Period: period, Symbol: q.Symbol, Orders: []domain.OrderSummary{}}
	if !from.IsZero() {
		a.From = &from
	}
	if !to.IsZero() {
		a.To = &to
	}

	var closedWithProfit int
	for _, o := range orders {
		a.TotalOrders++
		if o.IsOpen() {
			a.OpenOrders++
		} else {
			a.ClosedOrders++
			if isWin(o) {
				a.WinCount++
			} else {
				a.LossCount++
			}
		}
		if o.FinalProfitPct != nil {
			pct := *o.FinalProfitPct
			a.TotalProfitPct += pct
			closedWithProfit++
			switch o.Status {
			case domain.StatusStopLoss:
				a.StopLoss.Count++
				a.StopLoss.TotalPct += pct
			case domain.StatusTakeProfitT1:
				a.TakeProfit.T1Count++
				a.TakeProfit.T1TotalPct += pct
			case domain.StatusTakeProfitT2:
				a.TakeProfit.T2Count++
				a.TakeProfit.T2TotalPct += pct
			case domain.StatusTakeProfitT3:
				a.TakeProfit.T3Count++
				a.TakeProfit.T3TotalPct += pct
			}
		}
		// ListOrders is newest first.
		if len(a.Orders) < analyticsOrderLimit {
			a.Orders = append(a.Orders, summarize(o))
		}
	}
	if closedWithProfit > 0 {
		a.AvgProfitPct = a.TotalProfitPct / float64(closedWithProfit)
	}
	a.WinRate = winRate(a.WinCount, a.LossCount)

	snaps, err := s.store.ListSnapshots(ctx, domain.SnapshotFilter{Symbol: q.Symbol, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("analytics price extremes: %w", err)
	}
	a.PriceExtremes = priceExtremes(snaps)
	return a, nil
}

// periodWindow resolves a period name to [from, to]; zero times are open.
func (s *AggregationService) periodWindow(period string, from, to time.Time) (time.Time, time.Time, error) {
	now := s.now().UTC()
	switch period {
	case PeriodToday:
		return startOfDay(now), now, nil
	case PeriodWeek:
		return now.Add(-7 * day), now, nil
	case PeriodMonth:
		return now.Add(-30 * day), now, nil
	case PeriodAll:
		return time.Time{}, time.Time{}, nil
	case PeriodCustom:
		if !from.IsZero() && !to.IsZero() && to.Before(from) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end date before start date", domain.ErrInvalidOrderParameters)
		}
		return from, to, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidOrderParameters, period)
}

func priceExtremes(snaps []*domain.ProfitSnapshot) *domain.PriceExtremes {
	if len(snaps) == 0 {
		return nil
	}
	pe := &domain.PriceExtremes{
		Low: snaps[0].Price, LowTime: snaps[0].RecordedAt,
		High: snaps[0].Price, HighTime: snaps[0].RecordedAt,
	}
	for _, sn := range snaps[1:] {
		if sn.Price < pe.Low {
			pe.Low, pe.LowTime = sn.Price, sn.RecordedAt
		}
		if sn.Price > pe.High {
			pe.High, pe.HighTime = sn.Price, sn.RecordedAt
		}
	}
	return pe
}

func summarize(o *domain.Order) domain.OrderSummary {
	return domain.OrderSummary{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Direction:      o.Direction,
		Status:         o.Status,
		EntryPrice:     o.EntryPrice,
		ClosedPrice:    o.ClosedPrice,
		FinalProfitPct: o.FinalProfitPct,
		OpenedAt:       o.OpenedAt,
		ClosedAt:       o.ClosedAt,
	}
}

func isWin(o *domain.Order) bool {
	if o.IsWin != nil {
		return *o.IsWin
	}
	return o.FinalProfitPct != nil && *o.FinalProfitPct > 0
}

func winRate(wins, losses int) *float64 {
	if wins+losses == 0 {
		return nil
	}
	r := float64(wins) / float64(wins+losses) * 100
	return &r
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
