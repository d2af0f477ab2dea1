package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"tracker-backend/internal/domain"
)

const (
	defaultMaxConcurrency = 8
	defaultPriceTimeout   = 10 * time.Second
)

// Evaluation is one recorded observation of an order. Applied is true only
// for the evaluation that moved the order out of OPEN.
type Evaluation struct {
	OrderID  string                 `json:"orderId"`
	Symbol   string                 `json:"symbol"`
	Interval string                 `json:"interval"`
	Result   EvaluationResult       `json:"result"`
	Snapshot *domain.ProfitSnapshot `json:"snapshot"`
	Status   domain.OrderStatus     `json:"status"`
	Applied  bool                   `json:"applied"`
}

// Outcome is the per-order entry of a batch pass. Exactly one of Evaluation
// and Err is set.
type Outcome struct {
	OrderID    string      `json:"orderId"`
	Symbol     string      `json:"symbol"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// OK reports whether the order was evaluated.
func (o Outcome) OK() bool { return o.Err == nil }

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders []*domain.Order `json:"orders"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ProfitHistory is the snapshot trail of one order.
type ProfitHistory struct {
	OrderID   string                   `json:"orderId"`
	Symbol    string                   `json:"symbol"`
	Snapshots []*domain.ProfitSnapshot `json:"snapshots"`
	Summary   ProfitHistorySummary     `json:"summary"`
}

// ProfitHistorySummary condenses a snapshot trail. Pointers are nil when
// there are no snapshots.
type ProfitHistorySummary struct {
	Count        int      `json:"count"`
	LatestProfit *float64 `json:"latestProfit"`
	MaxProfit    *float64 `json:"maxProfit"`
	MinProfit    *float64 `json:"minProfit"`
	AvgProfit    *float64 `json:"avgProfit"`
}

// TrackingOption customises a TrackingService.
type TrackingOption func(*TrackingService)

// WithMaxConcurrency bounds the parallel evaluations of one pass.
func WithMaxConcurrency(n int) TrackingOption {
	return func(s *TrackingService) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithPriceTimeout bounds every price lookup.
func WithPriceTimeout(d time.Duration) TrackingOption {
	return func(s *TrackingService) {
		if d > 0 {
			s.priceTimeout = d
		}
	}
}

func WithClock(now func() time.Time) TrackingOption {
	return func(s *TrackingService) { s.now = now }
}

func WithNotifier(n Notifier) TrackingOption {
	return func(s *TrackingService) { s.notifier = n }
}

func WithEventPublisher(p EventPublisher) TrackingOption {
	return func(s *TrackingService) { s.events = p }
}

func WithRecorder(r Recorder) TrackingOption {
	return func(s *TrackingService) {
		if r != nil {
			s.metrics = r
		}
	}
}

// TrackingService drives the order lifecycle: it prices open orders, records
// profit snapshots and moves orders to a terminal status when a stop or
// target is hit.
type TrackingService struct {
	store  domain.OrderStore
	prices domain.PriceSource
	logger *slog.Logger

	maxConcurrency int
	priceTimeout   time.Duration
	now            func() time.Time
	notifier       Notifier
	events         EventPublisher
	metrics        Recorder
	configs        domain.TrackingConfigStore
}

func NewTrackingService(store domain.OrderStore, prices domain.PriceSource, logger *slog.Logger, opts ...TrackingOption) *TrackingService {
	s := &TrackingService{
		store:          store,
		prices:         prices,
		logger:         logger.With("component", "tracking"),
		maxConcurrency: defaultMaxConcurrency,
		priceTimeout:   defaultPriceTimeout,
		now:            time.Now,
		metrics:        nopRecorder{},
	}
	if cs, ok := store.(domain.TrackingConfigStore); ok {
		s.configs = cs
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates params and stores a new OPEN order.
func (s *TrackingService) CreateOrder(ctx context.Context, p domain.OrderParams) (*domain.Order, error) {
	order, err := domain.NewOrder(p, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order %s: %w", order.Symbol, err)
	}

	s.logger.Info("order created", "order_id", order.ID, "symbol", order.Symbol,
		"direction", order.Direction, "entry", order.EntryPrice, "stop", order.StopLoss)
	s.publish(OrderEvent{Type: EventOrderCreated, Order: order})
	return order, nil
}

func (s *TrackingService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *TrackingService) ListOrders(ctx context.Context, filter domain.OrderFilter) (*OrderPage, error) {
	orders, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return &OrderPage{Orders: orders, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ProfitHistory returns the snapshots of an order, optionally restricted to
// one interval label, oldest first.
func (s *TrackingService) ProfitHistory(ctx context.Context, id, interval string) (*ProfitHistory, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.ListSnapshots(ctx, domain.SnapshotFilter{OrderID: id, Interval: interval})
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", id, err)
	}
	if snaps == nil {
		snaps = []*domain.ProfitSnapshot{}
	}

	h := &ProfitHistory{OrderID: order.ID, Symbol: order.Symbol, Snapshots: snaps}
	h.Summary.Count = len(snaps)
	if len(snaps) == 0 {
		return h, nil
	}
	latest := snaps[len(snaps)-1].ProfitPct
	maxP, minP, sum := math.Inf(-1), math.Inf(1), 0.0
	for _, sn := range snaps {
		maxP = math.Max(maxP, sn.ProfitPct)
		minP = math.Min(minP, sn.ProfitPct)
		sum += sn.ProfitPct
	}
	avg := sum / float64(len(snaps))
	h.Summary.LatestProfit = &latest
	h.Summary.MaxProfit = &maxP
	h.Summary.MinProfit = &minP
	h.Summary.AvgProfit = &avg
	return h, nil
}

// EvaluateOne prices a single OPEN order, records a snapshot under interval
// and, if a stop or target was hit, closes the order in the same write.
// A price failure leaves the store untouched.
func (s *TrackingService) EvaluateOne(ctx context.Context, id, interval string) (*Evaluation, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderAlreadyClosed, id, order.Status)
	}

	price, err := s.fetchPrice(ctx, order.Symbol)
	if err != nil {
		s.metrics.ObserveEvaluation(interval, "price_unavailable")
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	return s.evaluate(ctx, order, price, interval)
}

// EvaluateAll evaluates every OPEN order under interval. Failures are
// reported per order and never stop the rest of the pass. The error is
// non-nil only when the open orders could not be loaded.
func (s *TrackingService) EvaluateAll(ctx context.Context, interval string) ([]Outcome, error) {
	orders, err := s.store.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}
	s.metrics.SetOpenOrders(len(orders))
	return s.evaluateOrders(ctx, orders, func(*domain.Order) string { return interval }), nil
}

// EvaluateRealtime evaluates the OPEN orders that opted into realtime
// tracking. Each snapshot carries its config's interval label.
func (s *TrackingService) EvaluateRealtime(ctx context.Context) ([]Outcome, error) {
	if s.configs == nil {
		return nil, nil
	}
	active, err := s.configs.ActiveTrackingConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tracking configs: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}
	open, err := s.store.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}

	var orders []*domain.Order
	for _, o := range open {
		if _, ok := active[o.ID]; ok {
			orders = append(orders, o)
		}
	}
	return s.evaluateOrders(ctx, orders, func(o *domain.Order) string {
		if label := active[o.ID].Interval; label != "" {
			return label
		}
		return domain.DefaultRealtimeInterval
	}), nil
}

// Close manually closes an OPEN order as CLOSED at price, or at the current
// market price when price is nil. No snapshot is written.
func (s *TrackingService) Close(ctx context.Context, id string, price *float64) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderAlreadyClosed, id, order.Status)
	}

	var closePrice float64
	if price != nil {
		if *price <= 0 || math.IsNaN(*price) || math.IsInf(*price, 0) {
			return nil, fmt.Errorf("%w: closed price must be positive", domain.ErrInvalidOrderParameters)
		}
		closePrice = *price
	} else {
		closePrice, err = s.fetchPrice(ctx, order.Symbol)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
	}

	t := domain.Transition{
		OrderID:  id,
		Expected: domain.StatusOpen,
		Next:     domain.StatusClosed,
		Close: domain.CloseFields{
			ClosedAt:       s.now().UTC(),
			ClosedPrice:    closePrice,
			FinalProfitPct: ProfitPct(order.Direction, order.EntryPrice, closePrice),
		},
	}
	applied, err := s.store.TransitionOrder(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("close order %s: %w", id, err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: %s closed concurrently", domain.ErrOrderAlreadyClosed, id)
	}

	order.Apply(t.Next, t.Close)
	s.metrics.ObserveTransition(t.Next)
	s.logger.Info("order closed manually", "order_id", id, "symbol", order.Symbol,
		"price", closePrice, "profit_pct", t.Close.FinalProfitPct)
	s.publish(OrderEvent{Type: EventOrderClosed, Order: order})
	return order, nil
}

// evaluateOrders runs one pass over orders with bounded parallelism.
func (s *TrackingService) evaluateOrders(ctx context.Context, orders []*domain.Order, labelFor func(*domain.Order) string) []Outcome {
	outcomes := make([]Outcome, len(orders))
	if len(orders) == 0 {
		return outcomes
	}
	prices, priceErrs := s.fetchPrices(ctx, orders)

	// Workers never return an error, so one failure cannot cancel the rest.
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i, order := range orders {
		g.Go(func() error {
			outcomes[i] = s.evaluateInPass(ctx, order, labelFor(order), prices, priceErrs)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// evaluateInPass evaluates one order of a pass. A panic in a collaborator is
// reported as that order's error so the pass and its driver keep going.
func (s *TrackingService) evaluateInPass(ctx context.Context, order *domain.Order, interval string, prices map[string]float64, priceErrs map[string]error) (out Outcome) {
	out = Outcome{OrderID: order.ID, Symbol: order.Symbol}
	defer func() {
		if r := recover(); r != nil {
			out.Evaluation = nil
			out.Err = fmt.Errorf("order %s: evaluation panicked: %v", order.ID, r)
		}
		if out.Err != nil {
			out.Error = out.Err.Error()
			s.logger.Warn("order evaluation failed", "order_id", order.ID, "symbol", order.Symbol,
				"interval", interval, "error", out.Err)
		}
	}()

	price, ok := prices[order.Symbol]
	if !ok {
		err := priceErrs[order.Symbol]
		if err == nil {
			err = fmt.Errorf("%w: %s: no price returned", domain.ErrPriceUnavailable, order.Symbol)
		}
		s.metrics.ObserveEvaluation(interval, "price_unavailable")
		out.Err = fmt.Errorf("order %s: %w", order.ID, err)
		return out
	}
	out.Evaluation, out.Err = s.evaluate(ctx, order, price, interval)
	return out
}

// evaluate computes the result for a priced order and persists it.
func (s *TrackingService) evaluate(ctx context.Context, order *domain.Order, price float64, interval string) (*Evaluation, error) {
	var positionValue *float64
	if v, ok := order.PositionValue(); ok {
		positionValue = &v
	}
	res := Evaluate(order, price, positionValue)
	now := s.now().UTC()

	snap := &domain.ProfitSnapshot{
		OrderID:             order.ID,
		Price:               price,
		ProfitPct:           res.ProfitPct,
		ProfitAmount:        res.ProfitAmount,
		Interval:            interval,
		StopTriggered:       res.StopTriggered,
		TakeProfitTriggered: res.TakeProfitTriggered,
		TriggeredTarget:     res.TriggeredTarget,
		RecordedAt:          now,
	}

	var t *domain.Transition
	if res.Triggered() {
		t = &domain.Transition{
			OrderID:  order.ID,
			Expected: domain.StatusOpen,
			Next:     StatusFor(res),
			Close: domain.CloseFields{
				ClosedAt:       now,
				ClosedPrice:    price,
				FinalProfitPct: res.ProfitPct,
			},
		}
	}

	applied, err := s.store.RecordEvaluation(ctx, snap, t)
	if err != nil {
		s.metrics.ObserveEvaluation(interval, "store_error")
		return nil, fmt.Errorf("record evaluation for %s: %w", order.ID, err)
	}
	s.metrics.ObserveEvaluation(interval, "ok")

	ev := &Evaluation{
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Interval: interval,
		Result:   res,
		Snapshot: snap,
		Status:   order.Status,
		Applied:  applied,
	}

	if !applied {
		// Another writer may have closed the order since it was loaded.
		if cur, err := s.store.GetOrder(ctx, order.ID); err == nil {
			ev.Status = cur.Status
		}
	}

	switch {
	case t != nil && applied:
		order.Apply(t.Next, t.Close)
		ev.Status = order.Status
		s.onTriggered(ctx, order, res, interval)
	case t != nil:
		s.logger.Info("transition skipped", "order_id", order.ID, "next", t.Next,
			"status", ev.Status, "reason", domain.ErrConcurrentTransitionLost)
	case ev.Status != domain.StatusOpen:
		s.logger.Info("order closed during evaluation", "order_id", order.ID, "status", ev.Status)
	default:
		s.publish(OrderEvent{Type: EventOrderEvaluated, Order: order, Evaluation: &res, Interval: interval})
	}
	return ev, nil
}

func (s *TrackingService) onTriggered(ctx context.Context, order *domain.Order, res EvaluationResult, interval string) {
	s.metrics.ObserveTransition(order.Status)
	s.logger.Info("order triggered", "order_id", order.ID, "symbol", order.Symbol,
		"status", order.Status, "price", res.Price, "profit_pct", res.ProfitPct, "interval", interval)
	s.publish(OrderEvent{Type: EventOrderClosed, Order: order, Evaluation: &res, Interval: interval})
	if s.notifier != nil {
		s.notifier.NotifyTrigger(ctx, order, res)
	}
}

func (s *TrackingService) publish(ev OrderEvent) {
	if s.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = s.now().UTC()
	}
	ev.Order = ev.Order.Clone()
	s.events.Publish(ev)
}

// fetchPrice looks up one symbol under the price timeout. Any failure is
// reported as ErrPriceUnavailable.
func (s *TrackingService) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.priceTimeout)
	defer cancel()

	price, err := s.prices.GetPrice(ctx, symbol)
	if err == nil && !validPrice(price) {
		err = fmt.Errorf("invalid price %v", price)
	}
	if err != nil {
		s.metrics.ObservePriceFailure(symbol)
		if errors.Is(err, domain.ErrPriceUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrPriceUnavailable, symbol, err)
	}
	return price, nil
}

// fetchPrices prices the distinct symbols of orders, in one call when the
// source supports batching.
func (s *TrackingService) fetchPrices(ctx context.Context, orders []*domain.Order) (map[string]float64, map[string]error) {
	seen := make(map[string]bool, len(orders))
	symbols := make([]string, 0, len(orders))
	for _, o := range orders {
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			symbols = append(symbols, o.Symbol)
		}
	}

	prices := make(map[string]float64, len(symbols))
	errs := make(map[string]error)

	if batch, ok := s.prices.(domain.BatchPriceSource); ok {
		bctx, cancel := context.WithTimeout(ctx, s.priceTimeout)
		got, gotErrs := batch.GetPrices(bctx, symbols)
		cancel()
		for _, sym := range symbols {
			if p, ok := got[sym]; ok && validPrice(p) {
				prices[sym] = p
				continue
			}
			err := gotErrs[sym]
			if err == nil {
				err = errors.New("missing from batch response")
			}
			s.metrics.ObservePriceFailure(sym)
			errs[sym] = fmt.Errorf("%w: %s: %w", domain.ErrPriceUnavailable, sym, err)
		}
		return prices, errs
	}

	type priced struct {
		symbol string
		price  float64
		err    error
	}
	results := make([]priced, len(symbols))
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			p, err := s.fetchPrice(ctx, sym)
			results[i] = priced{symbol: sym, price: p, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.err != nil {
			errs[r.symbol] = r.err
			continue
		}
		prices[r.symbol] = r.price
	}
	return prices, errs
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
