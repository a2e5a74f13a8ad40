package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/cache"
	"github.com/shashiranjanraj/veritas/pkg/event"
	"github.com/shashiranjanraj/veritas/pkg/logger"
)

// TransferService moves products through custody: retailer receipt and the
// terminal sale. Client-side guard checks run first for a fast answer, but
// the ledger's own rejection is what counts.
type TransferService struct {
	ledger provenance.Ledger
	signer provenance.Signer
}

func NewTransferService(l provenance.Ledger, s provenance.Signer) *TransferService {
	return &TransferService{ledger: l, signer: s}
}

// TransferOutput reports the resulting state after a custody write.
type TransferOutput struct {
	ProductID uint64 `json:"productId"`
	TxID      string `json:"txId"`
	State     string `json:"state"`
}

// Receive records a RETAIL_RECEIVED event signed by the acting retailer.
func (s *TransferService) Receive(ctx context.Context, id uint64, location, entity string, actor provenance.Address) (TransferOutput, error) {
	product, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return TransferOutput{}, err
	}
	if err := provenance.CheckReceive(product, actor); err != nil {
		return TransferOutput{}, err
	}

	manufactured, err := firstEvent(ctx, s.ledger, id)
	if err != nil {
		return TransferOutput{}, err
	}

	ev := provenance.CustodyEvent{
		Kind:     provenance.KindRetailReceived,
		Time:     time.Now(),
		Location: location,
		Entity:   entity,
		Actor:    actor,
	}
	payload := provenance.RetailerPayload(product.Serial, product.Descriptor, manufactured)
	sig, err := s.signer.Sign(payload, actor)
	if err != nil {
		return TransferOutput{}, fmt.Errorf("transfer: sign receipt: %w", err)
	}
	// Fast-fail before submitting: an event the verifier cannot validate
	// must never reach the append-only history.
	if !provenance.Verify(payload, sig, actor) {
		return TransferOutput{}, fmt.Errorf("transfer: %w: signer output does not verify for %s", provenance.ErrSignatureInvalid, actor)
	}
	ev.Signature = sig

	rcpt, err := s.ledger.AppendCustodyEvent(ctx, id, ev, actor)
	if err != nil {
		if provenance.IsTransient(err) {
			// The write may have landed; resolve by re-reading, never by
			// re-submitting.
			if landed := s.receiptLanded(ctx, id, actor); landed {
				logger.Warn("transfer: ambiguous append resolved as landed", "product_id", id)
				return s.afterWrite(ctx, id, "")
			}
		}
		return TransferOutput{}, err
	}

	event.FireAsync(event.CustodyAppended, FeedUpdate{
		ProductID: id,
		Kind:      string(provenance.KindRetailReceived),
		Entity:    entity,
	})
	return s.afterWrite(ctx, id, rcpt.TxID)
}

// Sell marks the product sold. Only the current holder may do this, and it
// is terminal.
func (s *TransferService) Sell(ctx context.Context, id uint64, actor provenance.Address) (TransferOutput, error) {
	product, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return TransferOutput{}, err
	}
	history, err := s.ledger.GetHistory(ctx, id)
	if err != nil {
		return TransferOutput{}, err
	}
	if err := provenance.CheckSell(product, history, actor); err != nil {
		return TransferOutput{}, err
	}

	rcpt, err := s.ledger.MarkSold(ctx, id, actor)
	if err != nil {
		if provenance.IsTransient(err) {
			if p, rerr := s.ledger.GetProduct(ctx, id); rerr == nil && p.Sold {
				logger.Warn("transfer: ambiguous sale resolved as landed", "product_id", id)
				return s.afterWrite(ctx, id, "")
			}
		}
		return TransferOutput{}, err
	}

	event.FireAsync(event.ProductSold, FeedUpdate{ProductID: id, Kind: "SOLD"})
	return s.afterWrite(ctx, id, rcpt.TxID)
}

func (s *TransferService) afterWrite(ctx context.Context, id uint64, txID string) (TransferOutput, error) {
	cache.ForgetPrefix(ctx, verdictCachePrefix(id))

	product, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return TransferOutput{}, err
	}
	history, err := s.ledger.GetHistory(ctx, id)
	if err != nil {
		return TransferOutput{}, err
	}
	state, err := provenance.CurrentState(product, history)
	if err != nil {
		return TransferOutput{}, err
	}

	return TransferOutput{ProductID: id, TxID: txID, State: state.String()}, nil
}

// receiptLanded reports whether the latest history entry is a retail
// receipt by actor, meaning the ambiguous write actually committed.
func (s *TransferService) receiptLanded(ctx context.Context, id uint64, actor provenance.Address) bool {
	history, err := s.ledger.GetHistory(ctx, id)
	if err != nil || len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	return last.Kind == provenance.KindRetailReceived && last.Actor.Equal(actor)
}

func firstEvent(ctx context.Context, l provenance.Ledger, id uint64) (provenance.CustodyEvent, error) {
	history, err := l.GetHistory(ctx, id)
	if err != nil {
		return provenance.CustodyEvent{}, err
	}
	if len(history) == 0 || history[0].Kind != provenance.KindManufactured {
		return provenance.CustodyEvent{}, provenance.ErrCorruptHistory
	}
	return history[0], nil
}
