package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tracker-backend/internal/domain"
	"tracker-backend/internal/repository"
)

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  int
}

func newFakePrices(prices map[string]float64) *fakePrices {
	return &fakePrices{prices: prices, errs: map[string]error{}}
}

func (f *fakePrices) GetPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[symbol]; ok {
		return 0, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return p, nil
}

func (f *fakePrices) set(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

// batchPrices adds the batched form on top of fakePrices.
type batchPrices struct {
	*fakePrices
	batchCalls int
}

func (b *batchPrices) GetPrices(ctx context.Context, symbols []string) (map[string]float64, map[string]error) {
	b.batchCalls++
	prices := map[string]float64{}
	errs := map[string]error{}
	for _, s := range symbols {
		p, err := b.GetPrice(ctx, s)
		if err != nil {
			errs[s] = err
			continue
		}
		prices[s] = p
	}
	return prices, errs
}

type blockingPrices struct{}

func (blockingPrices) GetPrice(ctx context.Context, _ string) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) Publish(ev OrderEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) NotifyTrigger(context.Context, *domain.Order, EvaluationResult) {
	c.n.Add(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store domain.OrderStore, prices domain.PriceSource, opts ...TrackingOption) *TrackingService {
	t.Helper()
	opts = append([]TrackingOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewTrackingService(store, prices, discardLogger(), opts...)
}

func mustCreate(t *testing.T, svc *TrackingService, symbol string) *domain.Order {
	t.Helper()
	o, err := svc.CreateOrder(context.Background(), domain.OrderParams{
		Symbol:     symbol,
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		StopLoss:   95,
		TargetT1:   domain.Float(105),
		TargetT2:   domain.Float(110),
		TargetT3:   domain.Float(115),
		OpenAmount: domain.Float(1000),
	})
	if err != nil {
		t.Fatalf("CreateOrder(%s): %v", symbol, err)
	}
	return o
}

func snapshotCount(t *testing.T, store domain.OrderStore, orderID string) int {
	t.Helper()
	snaps, err := store.ListSnapshots(context.Background(), domain.SnapshotFilter{OrderID: orderID})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	return len(snaps)
}

func TestEvaluateOneRecordsSnapshot(t *testing.T) {
	store := repository.NewInMemoryOrderStore()
	prices := newFakePrices(map[string]float64{"BTCUSDT": 102})
	svc := newTestService(t, store, prices)
	o := mustCreate(t, svc, "BTCUSDT")

	ev, err := svc.EvaluateOne(context.Background(), o.ID, domain.Interval30m)
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if ev.Applied || ev.Status != domain.StatusOpen {
		t.Errorf("untriggered evaluation: applied=%v status=%s", ev.Applied, ev.Status)
	}
	if !almostEqual(ev.Result.ProfitPct, 2) {
		t.Errorf("ProfitPct = %v, want 2", ev.Result.ProfitPct)
	}
	if ev.Snapshot.ProfitAmount == nil || !almostEqual(*ev.Snapshot.ProfitAmount, 20) {
		t.Errorf("ProfitAmount = %v, want 20", ev.Snapshot.ProfitAmount)
	}
	if ev.Snapshot.Interval != domain.Interval30m {
		t.Errorf("Interval = %q, want 30m", ev.Snapshot.Interval)
	}
	if n := snapshotCount(t, store, o.ID); n != 1 {
		t.Errorf("snapshots = %d, want 1", n)
	}
}

func TestEvaluateOneTriggersTransition(t *testing.T) {
	store := repository.NewInMemoryOrderStore()
	prices := newFakePrices(map[string]float64{"BTCUSDT": 112})
	notifier := &countingNotifier{}
	pub := &recordingPublisher{}
	svc := newTestService(t, store, prices, WithNotifier(notifier), WithEventPublisher(pub))
	o := mustCreate(t, svc, "BTCUSDT")

	ev, err := svc.EvaluateOne(context.Background(), o.ID, domain.Interval1h)
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if !ev.Applied || ev.Status != domain.StatusTakeProfitT2 {
		t.Fatalf("applied=%v status=%s, want applied TAKE_PROFIT_T2", ev.Applied, ev.Status)
	}

	got, err := store.GetOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != domain.StatusTakeProfitT2 {
		t.Errorf("stored status = %s, want TAKE_PROFIT_T2", got.Status)
	}
	if err := got.CheckCloseFields(); err != nil {
		t.Errorf("close fields: %v", err)
	}
	if *got.ClosedPrice != 112 || !almostEqual(*got.FinalProfitPct, 12) || !*got.IsWin {
		t.Errorf("close fields = (%v, %v, %v), want (112, 12, true)", *got.ClosedPrice, *got.FinalProfitPct, *got.IsWin)
	}
	if !got.ClosedAt.Equal(fixedNow) {
		t.Errorf("ClosedAt = %v, want %v", got.ClosedAt, fixedNow)
	}
	if notifier.n.Load() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.n.Load())
	}
	if pub.count(EventOrderClosed) != 1 {
		t.Errorf("closed events = %d, want 1", pub.count(EventOrderClosed))
	}
}

func TestEvaluateOneErrors(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryOrderStore()
	prices := newFakePrices(map[string]float64{"BTCUSDT": 101})
	svc := newTestService(t, store, prices)

	if _, err := svc.EvaluateOne(ctx, "missing", domain.IntervalManual); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("missing order: err = %v, want ErrOrderNotFound", err)
	}

	closed := mustCreate(t, svc, "BTCUSDT")
	if _, err := svc.Close(ctx, closed.ID, domain.Float(101)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	before := snapshotCount(t, store, closed.ID)
	if _, err := svc.EvaluateOne(ctx, closed.ID, domain.IntervalManual); !errors.Is(err, domain.ErrOrderAlreadyClosed) {
		t.Errorf("closed order: err = %v, want ErrOrderAlreadyClosed", err)
	}
	if after := snapshotCount(t, store, closed.ID); after != before {
		t.Errorf("snapshots changed from %d to %d on a closed order", before, after)
	}
	got, _ := store.GetOrder(ctx, closed.ID)
	if got.Status != domain.StatusClosed {
		t.Errorf("status = %s, want CLOSED", got.Status)
	}

	open := mustCreate(t, svc, "ETHUSDT")
	if _, err := svc.EvaluateOne(ctx, open.ID, domain.IntervalManual); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("no price: err = %v, want ErrPriceUnavailable", err)
	}
	if n := snapshotCount(t, store, open.ID); n != 0 {
		t.Errorf("snapshots = %d after price failure, want 0", n)
	}
}

func TestEvaluateOnePriceTimeout(t *testing.T) {
	store := repository.NewInMemoryOrderStore()
	svc := newTestService(t, store, blockingPrices{}, WithPriceTimeout(20*time.Millisecond))
	o := mustCreate(t, svc, "BTCUSDT")

	start := time.Now()
	_, err := svc.EvaluateOne(context.Background(), o.ID, domain.IntervalManual)
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestEvaluateAllIsolatesFailures(t *testing.T) {
	for _, batched := range []bool{false, true} {
		name := "single"
		if batched {
			name = "batched"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := repository.NewInMemoryOrderStore()
			fp := newFakePrices(map[string]float64{"BTCUSDT": 94, "ETHUSDT": 101})
			fp.errs["SOLUSDT"] = errors.New("upstream 503")

			var src domain.PriceSource = fp
			bp := &batchPrices{fakePrices: fp}
			if batched {
				src = bp
			}
			svc := newTestService(t, store, src, WithMaxConcurrency(2))
			btc := mustCreate(t, svc, "BTCUSDT")
			eth := mustCreate(t, svc, "ETHUSDT")
			sol := mustCreate(t, svc, "SOLUSDT")

			outcomes, err := svc.EvaluateAll(ctx, domain.Interval4h)
			if err != nil {
				t.Fatalf("EvaluateAll: %v", err)
			}
			if len(outcomes) != 3 {
				t.Fatalf("outcomes = %d, want 3", len(outcomes))
			}
			byID := map[string]Outcome{}
			for _, o := range outcomes {
				byID[o.OrderID] = o
			}

			if o := byID[btc.ID]; !o.OK() || !o.Evaluation.Applied || o.Evaluation.Status != domain.StatusStopLoss {
				t.Errorf("BTC outcome = %+v, want applied STOP_LOSS", o)
			}
			if o := byID[eth.ID]; !o.OK() || o.Evaluation.Applied {
				t.Errorf("ETH outcome = %+v, want untriggered success", o)
			}
			if o := byID[sol.ID]; o.OK() || !errors.Is(o.Err, domain.ErrPriceUnavailable) || o.Error == "" {
				t.Errorf("SOL outcome = %+v, want ErrPriceUnavailable", o)
			}

			if n := snapshotCount(t, store, btc.ID); n != 1 {
				t.Errorf("BTC snapshots = %d, want 1", n)
			}
			if n := snapshotCount(t, store, eth.ID); n != 1 {
				t.Errorf("ETH snapshots = %d, want 1", n)
			}
			if n := snapshotCount(t, store, sol.ID); n != 0 {
				t.Errorf("SOL snapshots = %d, want 0", n)
			}
			got, _ := store.GetOrder(ctx, sol.ID)
			if got.Status != domain.StatusOpen {
				t.Errorf("SOL status = %s, want OPEN", got.Status)
			}
			if batched && bp.batchCalls != 1 {
				t.Errorf("batch calls = %d, want 1", bp.batchCalls)
			}
		})
	}
}

func TestEvaluateAllNoOpenOrders(t *testing.T) {
	svc := newTestService(t, repository.NewInMemoryOrderStore(), newFakePrices(nil))
	outcomes, err := svc.EvaluateAll(context.Background(), domain.Interval30m)
	if err != nil || len(outcomes) != 0 {
		t.Fatalf("EvaluateAll = (%v, %v), want empty", outcomes, err)
	}
}

// racingStore holds the first n GetOrder callers until all of them have
// loaded the order, so all of them observe OPEN before anyone writes.
type racingStore struct {
	*repository.InMemoryOrderStore
	n     int32
	calls atomic.Int32
	gate  sync.WaitGroup
}

func (s *racingStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.InMemoryOrderStore.GetOrder(ctx, id)
	if s.calls.Add(1) <= s.n {
		s.gate.Done()
		s.gate.Wait()
	}
	return o, err
}

// closingStore closes the order right before the evaluation is recorded.
type closingStore struct {
	*repository.InMemoryOrderStore
}

func (s *closingStore) RecordEvaluation(ctx context.Context, snap *domain.ProfitSnapshot, t *domain.Transition) (bool, error) {
	_, err := s.InMemoryOrderStore.TransitionOrder(ctx, domain.Transition{
		OrderID:  snap.OrderID,
		Expected: domain.StatusOpen,
		Next:     domain.StatusClosed,
		Close:    domain.CloseFields{ClosedAt: fixedNow, ClosedPrice: snap.Price},
	})
	if err != nil {
		return false, err
	}
	return s.InMemoryOrderStore.RecordEvaluation(ctx, snap, t)
}

// panickingPublisher panics on events for one symbol.
type panickingPublisher struct{ symbol string }

func (p panickingPublisher) Publish(ev OrderEvent) {
	if ev.Order != nil && ev.Order.Symbol == p.symbol {
		panic("publisher exploded")
	}
}

func TestConcurrentEvaluationSingleTransition(t *testing.T) {
	const racers = 4
	ctx := context.Background()

	mem := repository.NewInMemoryOrderStore()
	setup := newTestService(t, mem, newFakePrices(nil))
	o := mustCreate(t, setup, "BTCUSDT")

	store := &racingStore{InMemoryOrderStore: mem, n: racers}
	store.gate.Add(racers)
	notifier := &countingNotifier{}
	svc := newTestService(t, store, newFakePrices(map[string]float64{"BTCUSDT": 90}), WithNotifier(notifier))

	var wg sync.WaitGroup
	results := make([]*Evaluation, racers)
	errs := make([]error, racers)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.EvaluateOne(ctx, o.ID, domain.IntervalManual)
		}()
	}
	wg.Wait()

	applied := 0
	for i := range racers {
		if errs[i] != nil {
			t.Fatalf("racer %d: %v", i, errs[i])
		}
		if results[i].Applied {
			applied++
		}
		if results[i].Status != domain.StatusStopLoss {
			t.Errorf("racer %d status = %s, want STOP_LOSS", i, results[i].Status)
		}
	}
	if applied != 1 {
		t.Errorf("applied transitions = %d, want 1", applied)
	}
	if n := snapshotCount(t, mem, o.ID); n != racers {
		t.Errorf("snapshots = %d, want %d (losers keep theirs)", n, racers)
	}
	if notifier.n.Load() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.n.Load())
	}
	got, _ := mem.GetOrder(ctx, o.ID)
	if got.Status != domain.StatusStopLoss {
		t.Errorf("status = %s, want STOP_LOSS", got.Status)
	}
}

func TestEvaluateOneReportsCloseDuringEvaluation(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewInMemoryOrderStore()
	o := mustCreate(t, newTestService(t, mem, newFakePrices(nil)), "BTCUSDT")

	pub := &recordingPublisher{}
	svc := newTestService(t, &closingStore{InMemoryOrderStore: mem},
		newFakePrices(map[string]float64{"BTCUSDT": 101}), WithEventPublisher(pub))

	ev, err := svc.EvaluateOne(ctx, o.ID, domain.IntervalManual)
	if err != nil {
		t.Fatalf("EvaluateOne: %v", err)
	}
	if ev.Applied || ev.Status != domain.StatusClosed {
		t.Errorf("evaluation = applied %v status %s, want unapplied CLOSED", ev.Applied, ev.Status)
	}
	if n := pub.count(EventOrderEvaluated); n != 0 {
		t.Errorf("evaluated events = %d, want 0 for a closed order", n)
	}
}

func TestEvaluateAllRecoversWorkerPanic(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryOrderStore()
	svc := newTestService(t, store, newFakePrices(map[string]float64{"BTCUSDT": 101, "ETHUSDT": 101}),
		WithEventPublisher(panickingPublisher{symbol: "ETHUSDT"}))
	btc := mustCreate(t, svc, "BTCUSDT")
	eth := mustCreate(t, svc, "ETHUSDT")

	outcomes, err := svc.EvaluateAll(ctx, domain.Interval1h)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	byID := map[string]Outcome{}
	for _, o := range outcomes {
		byID[o.OrderID] = o
	}
	if o := byID[btc.ID]; !o.OK() {
		t.Errorf("BTC outcome = %+v, want success", o)
	}
	if o := byID[eth.ID]; o.OK() || o.Evaluation != nil || o.Error == "" {
		t.Errorf("ETH outcome = %+v, want recovered error", o)
	}
}

func TestCloseManual(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryOrderStore()
	prices := newFakePrices(map[string]float64{"BTCUSDT": 130})
	svc := newTestService(t, store, prices)

	// Price far past T3 still closes as CLOSED.
	o := mustCreate(t, svc, "BTCUSDT")
	closed, err := svc.Close(ctx, o.ID, nil)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != domain.StatusClosed || *closed.ClosedPrice != 130 || !almostEqual(*closed.FinalProfitPct, 30) {
		t.Errorf("closed = %s at %v (%v%%), want CLOSED at 130 (30%%)", closed.Status, *closed.ClosedPrice, *closed.FinalProfitPct)
	}
	if n := snapshotCount(t, store, o.ID); n != 0 {
		t.Errorf("manual close wrote %d snapshots", n)
	}

	if _, err := svc.Close(ctx, o.ID, nil); !errors.Is(err, domain.ErrOrderAlreadyClosed) {
		t.Errorf("second close: err = %v, want ErrOrderAlreadyClosed", err)
	}

	o2 := mustCreate(t, svc, "BTCUSDT")
	if _, err := svc.Close(ctx, o2.ID, domain.Float(-1)); !errors.Is(err, domain.ErrInvalidOrderParameters) {
		t.Errorf("negative price: err = %v, want ErrInvalidOrderParameters", err)
	}
	c2, err := svc.Close(ctx, o2.ID, domain.Float(97))
	if err != nil {
		t.Fatalf("Close with explicit price: %v", err)
	}
	if *c2.IsWin || !almostEqual(*c2.FinalProfitPct, -3) {
		t.Errorf("explicit close = (%v, win=%v), want (-3, false)", *c2.FinalProfitPct, *c2.IsWin)
	}

	o3 := mustCreate(t, svc, "XRPUSDT")
	if _, err := svc.Close(ctx, o3.ID, nil); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("no price: err = %v, want ErrPriceUnavailable", err)
	}
	got, _ := store.GetOrder(ctx, o3.ID)
	if got.Status != domain.StatusOpen {
		t.Errorf("status after failed close = %s, want OPEN", got.Status)
	}
}

func TestEvaluateRealtimeUsesEnabledConfigs(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryOrderStore()
	prices := newFakePrices(map[string]float64{"BTCUSDT": 101, "ETHUSDT": 101})
	svc := newTestService(t, store, prices)
	rt := NewRealtimeService(store, discardLogger(), WithRealtimeClock(func() time.Time { return fixedNow }))

	tracked := mustCreate(t, svc, "BTCUSDT")
	untracked := mustCreate(t, svc, "ETHUSDT")
	if _, err := rt.Enable(ctx, tracked.ID, "5m"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	outcomes, err := svc.EvaluateRealtime(ctx)
	if err != nil {
		t.Fatalf("EvaluateRealtime: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].OrderID != tracked.ID {
		t.Fatalf("outcomes = %+v, want only the tracked order", outcomes)
	}
	if got := outcomes[0].Evaluation.Snapshot.Interval; got != "5m" {
		t.Errorf("snapshot interval = %q, want 5m", got)
	}
	if n := snapshotCount(t, store, untracked.ID); n != 0 {
		t.Errorf("untracked order got %d snapshots", n)
	}
}

func TestProfitHistorySummary(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryOrderStore()
	prices := newFakePrices(map[string]float64{"BTCUSDT": 102})
	svc := newTestService(t, store, prices)
	o := mustCreate(t, svc, "BTCUSDT")

	h, err := svc.ProfitHistory(ctx, o.ID, "")
	if err != nil {
		t.Fatalf("ProfitHistory: %v", err)
	}
	if h.Summary.Count != 0 || h.Summary.LatestProfit != nil {
		t.Errorf("empty summary = %+v", h.Summary)
	}

	for _, p := range []float64{102, 99, 104} {
		prices.set("BTCUSDT", p)
		if _, err := svc.EvaluateOne(ctx, o.ID, domain.Interval30m); err != nil {
			t.Fatalf("EvaluateOne: %v", err)
		}
	}
	h, err = svc.ProfitHistory(ctx, o.ID, domain.Interval30m)
	if err != nil {
		t.Fatalf("ProfitHistory: %v", err)
	}
	s := h.Summary
	if s.Count != 3 || !almostEqual(*s.LatestProfit, 4) || !almostEqual(*s.MaxProfit, 4) || !almostEqual(*s.MinProfit, -1) || !almostEqual(*s.AvgProfit, 5.0/3) {
		t.Errorf("summary = count %d latest %v max %v min %v avg %v", s.Count, *s.LatestProfit, *s.MaxProfit, *s.MinProfit, *s.AvgProfit)
	}

	if _, err := svc.ProfitHistory(ctx, "nope", ""); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("missing order: err = %v, want ErrOrderNotFound", err)
	}
}
