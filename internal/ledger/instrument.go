package ledger

import (
	"context"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/metrics"
)

// Instrumented decorates a Ledger with per-operation latency metrics.
// Stack it outside the Retrier so observed durations include retries.
type Instrumented struct {
	inner provenance.Ledger
}

func WithMetrics(l provenance.Ledger) *Instrumented {
	return &Instrumented{inner: l}
}

func (m *Instrumented) GetProduct(ctx context.Context, id uint64) (provenance.Product, error) {
	defer metrics.ObserveLedgerCall("get_product", time.Now())
	return m.inner.GetProduct(ctx, id)
}

func (m *Instrumented) GetHistory(ctx context.Context, id uint64) ([]provenance.CustodyEvent, error) {
	defer metrics.ObserveLedgerCall("get_history", time.Now())
	return m.inner.GetHistory(ctx, id)
}

func (m *Instrumented) ProductCount(ctx context.Context) (uint64, error) {
	defer metrics.ObserveLedgerCall("product_count", time.Now())
	return m.inner.ProductCount(ctx)
}

func (m *Instrumented) CreateProduct(ctx context.Context, reg provenance.Registration, caller provenance.Address) (provenance.Receipt, error) {
	defer metrics.ObserveLedgerCall("create", time.Now())
	return m.inner.CreateProduct(ctx, reg, caller)
}

func (m *Instrumented) AppendCustodyEvent(ctx context.Context, id uint64, ev provenance.CustodyEvent, caller provenance.Address) (provenance.Receipt, error) {
	defer metrics.ObserveLedgerCall("append", time.Now())
	return m.inner.AppendCustodyEvent(ctx, id, ev, caller)
}

func (m *Instrumented) MarkSold(ctx context.Context, id uint64, caller provenance.Address) (provenance.Receipt, error) {
	defer metrics.ObserveLedgerCall("mark_sold", time.Now())
	return m.inner.MarkSold(ctx, id, caller)
}
