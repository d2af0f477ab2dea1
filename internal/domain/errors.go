package domain

import "errors"

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrOrderAlreadyClosed       = errors.New("order already closed")
	ErrPriceUnavailable         = errors.New("price unavailable")
	ErrInvalidOrderParameters   = errors.New("invalid order parameters")
	ErrConcurrentTransitionLost = errors.New("concurrent transition lost")
	ErrTrackingConfigNotFound   = errors.New("tracking config not found")
)
