package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/veritas/internal/ledger"
	"github.com/shashiranjanraj/veritas/internal/provenance"
)

// flakyLedger fails reads a set number of times before succeeding and
// counts every call so write passthrough can be asserted.
type flakyLedger struct {
	provenance.Ledger

	failures  int
	readCalls int
	writes    int
	product   provenance.Product
	readErr   error
}

func (f *flakyLedger) GetProduct(ctx context.Context, id uint64) (provenance.Product, error) {
	f.readCalls++
	if f.readCalls <= f.failures {
		return provenance.Product{}, f.readErr
	}
	return f.product, nil
}

func (f *flakyLedger) CreateProduct(ctx context.Context, reg provenance.Registration, caller provenance.Address) (provenance.Receipt, error) {
	f.writes++
	return provenance.Receipt{}, f.readErr
}

func TestRetrierRecoversFromTransientReadFailures(t *testing.T) {
	f := &flakyLedger{
		failures: 2,
		product:  provenance.Product{ID: 7, Serial: "SN-7"},
		readErr:  errors.New("connection reset"),
	}
	r := ledger.WithRetry(f, 3, time.Millisecond)

	p, err := r.GetProduct(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.ID)
	assert.Equal(t, 3, f.readCalls)
}

func TestRetrierGivesUpAsUnavailable(t *testing.T) {
	f := &flakyLedger{failures: 10, readErr: errors.New("connection reset")}
	r := ledger.WithRetry(f, 3, time.Millisecond)

	_, err := r.GetProduct(context.Background(), 7)
	assert.ErrorIs(t, err, provenance.ErrLedgerUnavailable)
	assert.Equal(t, 3, f.readCalls)
}

func TestRetrierDoesNotRetryDefinitiveAnswers(t *testing.T) {
	f := &flakyLedger{failures: 10, readErr: provenance.ErrProductNotFound}
	r := ledger.WithRetry(f, 5, time.Millisecond)

	_, err := r.GetProduct(context.Background(), 7)
	assert.ErrorIs(t, err, provenance.ErrProductNotFound)
	assert.Equal(t, 1, f.readCalls)
}

func TestRetrierNeverRetriesWrites(t *testing.T) {
	f := &flakyLedger{failures: 10, readErr: errors.New("connection reset")}
	r := ledger.WithRetry(f, 5, time.Millisecond)

	_, err := r.CreateProduct(context.Background(), provenance.Registration{}, "")
	assert.Error(t, err)
	assert.Equal(t, 1, f.writes)
}

func TestRetrierHonorsContextBetweenAttempts(t *testing.T) {
	f := &flakyLedger{failures: 10, readErr: errors.New("connection reset")}
	r := ledger.WithRetry(f, 10, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.GetProduct(ctx, 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, f.readCalls, 3)
}
