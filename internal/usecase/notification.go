package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tracker-backend/internal/domain"
)

const defaultAlertCooldown = time.Minute

// PushSender delivers a notification to many devices and reports the tokens
// that are no longer registered.
type PushSender interface {
	IsEnabled() bool
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]string, error)
}

// TokenStore is the device registry alerts are sent to.
type TokenStore interface {
	GetAllTokens() []string
	UnregisterToken(tokens ...string)
}

var (
	ErrPushDisabled = errors.New("push notifications not configured")
	ErrNoDevices    = errors.New("no registered devices")
)

// NotificationService pushes an alert to every registered device when an
// order hits its stop or a target. Alerts for the same symbol and status are
// rate limited by a cooldown.
type NotificationService struct {
	sender   PushSender
	tokens   TokenStore
	logger   *slog.Logger
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	notified map[string]time.Time
}

func NewNotificationService(sender PushSender, tokens TokenStore, logger *slog.Logger, cooldown time.Duration) *NotificationService {
	if cooldown <= 0 {
		cooldown = defaultAlertCooldown
	}
	return &NotificationService{
		sender:   sender,
		tokens:   tokens,
		logger:   logger.With("component", "notification"),
		cooldown: cooldown,
		now:      time.Now,
		notified: make(map[string]time.Time),
	}
}

// NotifyTrigger is best effort: failures are logged, never returned.
func (n *NotificationService) NotifyTrigger(ctx context.Context, order *domain.Order, res EvaluationResult) {
	if n.sender == nil || !n.sender.IsEnabled() {
		return
	}

	now := n.now()
	key := order.Symbol + "|" + string(order.Status)
	n.mu.Lock()
	last, seen := n.notified[key]
	if seen && now.Sub(last) < n.cooldown {
		n.mu.Unlock()
		return
	}
	n.notified[key] = now
	// Forget entries well past their cooldown.
	for k, ts := range n.notified {
		if now.Sub(ts) > 2*n.cooldown {
			delete(n.notified, k)
		}
	}
	n.mu.Unlock()

	title, body := alertText(order, res)
	data := map[string]string{
		"type":      "order_trigger",
		"orderId":   order.ID,
		"symbol":    order.Symbol,
		"status":    string(order.Status),
		"price":     fmt.Sprintf("%.8g", res.Price),
		"profitPct": fmt.Sprintf("%.2f", res.ProfitPct),
	}
	count, err := n.send(ctx, title, body, data)
	if err != nil {
		if !errors.Is(err, ErrNoDevices) {
			n.logger.Error("trigger alert failed", "order_id", order.ID, "symbol", order.Symbol, "error", err)
		}
		return
	}
	n.logger.Info("trigger alert sent", "order_id", order.ID, "symbol", order.Symbol, "devices", count)
}

// SendTest pushes a test alert and returns the number of targeted devices.
func (n *NotificationService) SendTest(ctx context.Context) (int, error) {
	if n.sender == nil || !n.sender.IsEnabled() {
		return 0, ErrPushDisabled
	}
	return n.send(ctx, "🧪 Test Notification",
		"Order tracker notifications are working.", map[string]string{"type": "test"})
}

func (n *NotificationService) send(ctx context.Context, title, body string, data map[string]string) (int, error) {
	tokens := n.tokens.GetAllTokens()
	if len(tokens) == 0 {
		return 0, ErrNoDevices
	}
	stale, err := n.sender.SendMulticast(ctx, tokens, title, body, data)
	if err != nil {
		return len(tokens), err
	}
	if len(stale) > 0 {
		n.tokens.UnregisterToken(stale...)
		n.logger.Info("dropped unregistered device tokens", "count", len(stale))
	}
	return len(tokens), nil
}

func alertText(order *domain.Order, res EvaluationResult) (string, string) {
	display := strings.TrimSuffix(order.Symbol, "USDT")
	var title string
	switch order.Status {
	case domain.StatusStopLoss:
		title = fmt.Sprintf("🛑 %s %s stop loss hit", display, order.Direction)
	default:
		title = fmt.Sprintf("🎯 %s %s %s reached", display, order.Direction, res.TriggeredTarget)
	}
	body := fmt.Sprintf("Entry: %.8g | Price: %.8g | P&L: %+.2f%%", order.EntryPrice, res.Price, res.ProfitPct)
	return title, body
}
