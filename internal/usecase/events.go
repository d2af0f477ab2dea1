package usecase

import (
	"context"
	"time"

	"tracker-backend/internal/domain"
)

// Order event types pushed to subscribers.
const (
	EventOrderCreated   = "order.created"
	EventOrderEvaluated = "order.evaluated"
	EventOrderClosed    = "order.closed"
)

// OrderEvent is published whenever an order is created, evaluated or leaves
// OPEN.
type OrderEvent struct {
	Type       string            `json:"type"`
	Order      *domain.Order     `json:"order"`
	Evaluation *EvaluationResult `json:"evaluation,omitempty"`
	Interval   string            `json:"interval,omitempty"`
	Time       time.Time         `json:"time"`
}

// EventPublisher fans order events out to live clients. Publish must not
// block.
type EventPublisher interface {
	Publish(event OrderEvent)
}

// Notifier sends an alert when an order hits its stop or a target.
type Notifier interface {
	NotifyTrigger(ctx context.Context, order *domain.Order, res EvaluationResult)
}

// Recorder receives tracking metrics.
type Recorder interface {
	ObserveEvaluation(interval, outcome string)
	ObserveTransition(status domain.OrderStatus)
	ObservePriceFailure(symbol string)
	ObservePass(interval string, d time.Duration)
	SetOpenOrders(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEvaluation(string, string) {}
func (nopRecorder) ObserveTransition(domain.OrderStatus) {}
func (nopRecorder) ObservePriceFailure(string) {}
func (nopRecorder) ObservePass(string, time.Duration) {}
func (nopRecorder) SetOpenOrders(int) {}
