package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/collection"
	"github.com/shashiranjanraj/veritas/pkg/event"
	"github.com/shashiranjanraj/veritas/pkg/logger"
	"github.com/shashiranjanraj/veritas/pkg/queue"
	"github.com/shashiranjanraj/veritas/pkg/storage"
)

// RegistrationService onboards products: it signs the manufacturer
// attestation, records the product on the ledger, and archives the encoded
// label so it can be re-issued later.
type RegistrationService struct {
	ledger provenance.Ledger
	signer provenance.Signer
}

func NewRegistrationService(l provenance.Ledger, s provenance.Signer) *RegistrationService {
	return &RegistrationService{ledger: l, signer: s}
}

// RegistrationInput is the manufacturer-facing request shape.
type RegistrationInput struct {
	Serial           string   `json:"serial"           validate:"required,max=128"`
	Name             string   `json:"name"             validate:"required,max=200"`
	Brand            string   `json:"brand"            validate:"nullable,max=200"`
	Description      string   `json:"description"      validate:"nullable,max=2000"`
	ImageURL         string   `json:"imageUrl"         validate:"nullable,url"`
	ManufacturerName string   `json:"manufacturerName" validate:"required,max=200"`
	Location         string   `json:"location"         validate:"nullable,max=200"`
	AllowedRetailers []string `json:"allowedRetailers"`
}

// RegistrationOutput carries the assigned id and the printable label.
type RegistrationOutput struct {
	ProductID uint64            `json:"productId"`
	TxID      string            `json:"txId"`
	Label     provenance.Bundle `json:"label"`
	LabelURL  string            `json:"labelUrl"`
}

// Register signs and records a new product as the given manufacturer
// address. The returned id comes from the ledger receipt, never from a
// client-side guess.
func (s *RegistrationService) Register(ctx context.Context, in RegistrationInput, actor provenance.Address) (RegistrationOutput, error) {
	if in.Serial == "" || in.Name == "" {
		return RegistrationOutput{}, fmt.Errorf("registration: serial and name are required")
	}

	desc := provenance.Descriptor{
		Name:        in.Name,
		Brand:       in.Brand,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}

	manufactured := provenance.CustodyEvent{
		Kind:     provenance.KindManufactured,
		Time:     time.Now(),
		Location: in.Location,
		Entity:   in.ManufacturerName,
		Actor:    actor,
	}

	payload := provenance.ManufacturerPayload(in.Serial, desc)
	sig, err := s.signer.Sign(payload, actor)
	if err != nil {
		return RegistrationOutput{}, fmt.Errorf("registration: sign attestation: %w", err)
	}
	if !provenance.Verify(payload, sig, actor) {
		return RegistrationOutput{}, fmt.Errorf("registration: %w: signer output does not verify for %s", provenance.ErrSignatureInvalid, actor)
	}
	manufactured.Signature = sig

	retailers := make([]provenance.Address, 0, len(in.AllowedRetailers))
	for _, r := range in.AllowedRetailers {
		addr := provenance.Address(r).Normalized()
		if !addr.Valid() {
			return RegistrationOutput{}, fmt.Errorf("registration: invalid retailer address %q", r)
		}
		retailers = append(retailers, addr)
	}
	retailers = collection.Unique(retailers)

	reg := provenance.Registration{
		Serial:           in.Serial,
		Descriptor:       desc,
		ManufacturerName: in.ManufacturerName,
		AllowedRetailers: retailers,
		Manufactured:     manufactured,
	}

	rcpt, err := s.ledger.CreateProduct(ctx, reg, actor)
	if err != nil {
		return RegistrationOutput{}, err
	}

	id, err := provenance.CreatedID(ctx, s.ledger, rcpt)
	if err != nil {
		return RegistrationOutput{}, err
	}

	product, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return RegistrationOutput{}, err
	}
	history, err := s.ledger.GetHistory(ctx, id)
	if err != nil {
		return RegistrationOutput{}, err
	}

	label := provenance.Encode(product, history)
	labelURL := archiveLabel(id, label)

	event.FireAsync(event.ProductRegistered, FeedUpdate{
		ProductID: id,
		Kind:      string(provenance.KindManufactured),
		Entity:    in.ManufacturerName,
	})

	return RegistrationOutput{
		ProductID: id,
		TxID:      rcpt.TxID,
		Label:     label,
		LabelURL:  labelURL,
	}, nil
}

// Label re-issues the archived label for a product, rebuilding it from the
// ledger when the archive copy is missing.
func (s *RegistrationService) Label(ctx context.Context, id uint64) (provenance.Bundle, error) {
	product, err := s.ledger.GetProduct(ctx, id)
	if err != nil {
		return provenance.Bundle{}, err
	}
	history, err := s.ledger.GetHistory(ctx, id)
	if err != nil {
		return provenance.Bundle{}, err
	}

	label := provenance.Encode(product, history)
	archiveLabel(id, label)
	return label, nil
}

// archiveLabel stores the encoded label via the background queue, falling
// back to an inline write when dispatch fails. A failed archive never fails
// the registration; the label can always be rebuilt.
func archiveLabel(id uint64, label provenance.Bundle) string {
	raw, err := label.Bytes()
	if err != nil {
		logger.Warn("registration: encode label for archive", "product_id", id, "error", err)
		return ""
	}

	path := labelPath(id)
	if err := queue.Dispatch(&ArchiveLabelJob{ProductID: id, Raw: raw}); err != nil {
		logger.Warn("registration: queue label archive", "product_id", id, "error", err)
		if err := storage.Put(path, raw); err != nil {
			logger.Warn("registration: archive label", "product_id", id, "error", err)
			return ""
		}
	}
	return storage.URL(path)
}

func labelPath(id uint64) string {
	return fmt.Sprintf("labels/%d.json", id)
}
