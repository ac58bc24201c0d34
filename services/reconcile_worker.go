package services

import (
	"context"
	"time"

	"sales-service/inventory"
	"sales-service/models"
	"sales-service/repository"

	"go.uber.org/zap"
)

// ReconcileWorker replays stock decrements that never reached the
// Inventory Service. Only undelivered commands are queued, so a replay
// cannot take the same stock twice.
type ReconcileWorker struct {
	queue       repository.ReconcileQueue
	commander   StockCommander
	backoff     inventory.Backoff
	pollTimeout time.Duration
	sendTimeout time.Duration
	logger      *zap.Logger
}

func NewReconcileWorker(queue repository.ReconcileQueue, commander StockCommander, backoff inventory.Backoff, logger *zap.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		queue:       queue,
		commander:   commander,
		backoff:     backoff,
		pollTimeout: 5 * time.Second,
		sendTimeout: 15 * time.Second,
		logger:      logger,
	}
}

// Run blocks until ctx is done.
func (w *ReconcileWorker) Run(ctx context.Context) {
	w.logger.Info("Reconcile worker started")
	failures := 0
	for {
		if ctx.Err() != nil {
			w.logger.Info("Reconcile worker stopped")
			return
		}

		cmd, err := w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to pop reconcile queue", zap.Error(err))
			w.sleep(ctx, w.backoff.Delay(failures))
			failures++
			continue
		}
		if cmd == nil {
			continue
		}

		if w.process(ctx, *cmd) {
			failures = 0
			continue
		}
		w.sleep(ctx, w.backoff.Delay(failures))
		failures++
	}
}

// process reports whether the queue made progress.
func (w *ReconcileWorker) process(ctx context.Context, cmd models.StockCommand) bool {
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	err := w.commander.SendCommand(sendCtx, cmd.ProductID, cmd.Quantity, cmd.Action)
	cancel()

	switch {
	case err == nil:
		w.logger.Info("Reconciled stock command",
			zap.Int("product_id", cmd.ProductID),
			zap.Int("quantity", cmd.Quantity),
			zap.String("action", cmd.Action),
		)
		return true
	case inventory.IsUndelivered(err):
		// push back for the next attempt; ctx may already be cancelled
		if perr := w.queue.Push(context.WithoutCancel(ctx), cmd); perr != nil {
			w.logger.Error("Lost stock command while requeueing",
				zap.Int("product_id", cmd.ProductID),
				zap.Int("quantity", cmd.Quantity),
				zap.Error(perr),
			)
		}
		return false
	default:
		// the remote saw it; replaying could double count
		w.logger.Warn("Dropping stock command after delivery failure",
			zap.Int("product_id", cmd.ProductID),
			zap.Int("quantity", cmd.Quantity),
			zap.Error(err),
		)
		return true
	}
}

func (w *ReconcileWorker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
