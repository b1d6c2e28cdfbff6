package services

import (
	"context"
	"log"
	"time"
)

// PaymentReconciler is what the Reconciler drives on every tick
type PaymentReconciler interface {
	ReconcileOrderPayments(ctx context.Context) (int, error)
}

// Reconciler periodically repairs order payment statuses left behind by a failed update
type Reconciler struct {
	payments PaymentReconciler
	interval time.Duration
}

// NewReconciler creates a reconciler ticking every interval
func NewReconciler(payments PaymentReconciler, interval time.Duration) *Reconciler {
	return &Reconciler{payments: payments, interval: interval}
}

// Run reconciles once immediately and then on every tick until ctx is cancelled
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("[reconcile] started interval=%s", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.runOnce(ctx)
		select {
		case <-ctx.Done():
			log.Printf("[reconcile] stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	repaired, err := r.payments.ReconcileOrderPayments(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[reconcile] pass failed err=%v", err)
		}
		return
	}
	if repaired > 0 {
		log.Printf("[reconcile] pass repaired=%d", repaired)
	}
}
