// Package notify abstracts customer notifications sent on order events.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier is called after order state changes. Implementations must be
// safe to call concurrently; failures are the caller's to log, not to fail
// the order on.
type Notifier interface {
	OrderConfirmed(ctx context.Context, orderNumber string) error
	OrderCancelled(ctx context.Context, orderNumber string) error
}

// LogNotifier records notifications in the log. Stands in until a real
// email/SMS channel is wired.
type LogNotifier struct {
	lg *zap.Logger
}

func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

func (n *LogNotifier) OrderConfirmed(_ context.Context, orderNumber string) error {
	n.lg.Info("order confirmed notification", zap.String("order_number", orderNumber))
	return nil
}

func (n *LogNotifier) OrderCancelled(_ context.Context, orderNumber string) error {
	n.lg.Info("order cancelled notification", zap.String("order_number", orderNumber))
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
