package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

// Retrier decorates a Ledger with bounded retry on reads. Writes pass
// through untouched: a write that fails ambiguously must be resolved by
// re-reading state, never by blind re-submission.
type Retrier struct {
	inner    provenance.Ledger
	attempts int
	base     time.Duration
}

// WithRetry wraps l. Reads are attempted up to attempts times with
// doubling backoff starting at base.
func WithRetry(l provenance.Ledger, attempts int, base time.Duration) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Retrier{inner: l, attempts: attempts, base: base}
}

func (r *Retrier) GetProduct(ctx context.Context, id uint64) (provenance.Product, error) {
	var p provenance.Product
	err := r.read(ctx, func() error {
		var err error
		p, err = r.inner.GetProduct(ctx, id)
		return err
	})
	return p, err
}

func (r *Retrier) GetHistory(ctx context.Context, id uint64) ([]provenance.CustodyEvent, error) {
	var h []provenance.CustodyEvent
	err := r.read(ctx, func() error {
		var err error
		h, err = r.inner.GetHistory(ctx, id)
		return err
	})
	return h, err
}

func (r *Retrier) ProductCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.read(ctx, func() error {
		var err error
		n, err = r.inner.ProductCount(ctx)
		return err
	})
	return n, err
}

func (r *Retrier) CreateProduct(ctx context.Context, reg provenance.Registration, caller provenance.Address) (provenance.Receipt, error) {
	return r.inner.CreateProduct(ctx, reg, caller)
}

func (r *Retrier) AppendCustodyEvent(ctx context.Context, id uint64, ev provenance.CustodyEvent, caller provenance.Address) (provenance.Receipt, error) {
	return r.inner.AppendCustodyEvent(ctx, id, ev, caller)
}

func (r *Retrier) MarkSold(ctx context.Context, id uint64, caller provenance.Address) (provenance.Receipt, error) {
	return r.inner.MarkSold(ctx, id, caller)
}

func (r *Retrier) read(ctx context.Context, fn func() error) error {
	var last error
	delay := r.base
	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		last = fn()
		if last == nil || !retryable(last) {
			return last
		}
	}
	return fmt.Errorf("%w: %w", provenance.ErrLedgerUnavailable, last)
}

// retryable reports whether err is a transport-level failure rather than
// a definitive ledger answer.
func retryable(err error) bool {
	switch {
	case errors.Is(err, provenance.ErrProductNotFound),
		errors.Is(err, provenance.ErrLedgerRejected),
		errors.Is(err, provenance.ErrAlreadySold),
		errors.Is(err, provenance.ErrUnauthorizedRetailer):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
