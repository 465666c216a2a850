package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker runs the periodic jobs: stale top-up expiry every interval and
// the fraud scan every fraudInterval.
type Worker struct {
	payments      *PaymentService
	fraud         *FraudService
	interval      time.Duration
	fraudInterval time.Duration
	logger        *zap.Logger
}

func NewWorker(payments *PaymentService, fraud *FraudService, interval, fraudInterval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		payments:      payments,
		fraud:         fraud,
		interval:      interval,
		fraudInterval: fraudInterval,
		logger:        logger.Named("worker"),
	}
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var fraudC <-chan time.Time
	if w.fraudInterval > 0 {
		fraudTicker := time.NewTicker(w.fraudInterval)
		defer fraudTicker.Stop()
		fraudC = fraudTicker.C
	}

	w.logger.Info("worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("fraud_interval", w.fraudInterval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return
		case <-ticker.C:
			w.expirePayments(ctx)
		case <-fraudC:
			w.scanFraud(ctx)
		}
	}
}

func (w *Worker) expirePayments(ctx context.Context) {
	if _, err := w.payments.ExpireStale(ctx); err != nil {
		w.logger.Error("expire stale payments", zap.Error(err))
	}
}

func (w *Worker) scanFraud(ctx context.Context) {
	if _, err := w.fraud.Scan(ctx, nil); err != nil {
		w.logger.Error("scheduled fraud scan", zap.Error(err))
	}
}
