// Package ledger is the reference implementation of the engine's Ledger
// gateway, backed by an append-only pair of relational tables. It enforces
// every write guard server-side — the engine's client-side checks are only
// a fast-fail courtesy; this store's verdict is the authoritative one.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

// Store implements provenance.Ledger on a gorm.DB.
type Store struct {
	db *gorm.DB
}

// New wraps db as a ledger store and migrates its tables.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&ProductRow{}, &EventRow{}); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// ProductRow mirrors one registered product. Identity columns never change
// after insert; only Sold flips, exactly once.
type ProductRow struct {
	ID                  uint64 `gorm:"primaryKey;autoIncrement"`
	Serial              string `gorm:"size:100;uniqueIndex;not null"`
	Name                string `gorm:"size:255;not null"`
	Brand               string `gorm:"size:255"`
	Description         string `gorm:"type:text"`
	ImageURL            string `gorm:"size:1024"`
	ManufacturerName    string `gorm:"size:255"`
	ManufacturerAddress string `gorm:"size:64;index;not null"`
	Retailers           string `gorm:"type:text"` // JSON array of allowed retailer addresses
	Sold                bool   `gorm:"not null;default:false"`
}

func (ProductRow) TableName() string { return "ledger_products" }

// EventRow is one custody event. Rows are only ever inserted.
type EventRow struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	ProductID    uint64 `gorm:"index:idx_ledger_events_product_seq,unique;not null"`
	Seq          int    `gorm:"index:idx_ledger_events_product_seq,unique;not null"`
	Kind         string `gorm:"size:32;not null"`
	OccurredAt   string `gorm:"size:40;not null"` // canonical timestamp string
	Location     string `gorm:"size:255"`
	Entity       string `gorm:"size:255"`
	ActorAddress string `gorm:"size:64;index;not null"`
	Signature    string `gorm:"type:text"`
}

func (EventRow) TableName() string { return "ledger_events" }

// ── Reads ────────────────────────────────────────────────────────────────────

func (s *Store) GetProduct(ctx context.Context, id uint64) (provenance.Product, error) {
	var row ProductRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return provenance.Product{}, fmt.Errorf("%w: id %d", provenance.ErrProductNotFound, id)
	}
	if err != nil {
		return provenance.Product{}, fmt.Errorf("ledger: get product %d: %w", id, err)
	}
	return rowToProduct(row)
}

func (s *Store) GetHistory(ctx context.Context, id uint64) ([]provenance.CustodyEvent, error) {
	var rows []EventRow
	err := s.db.WithContext(ctx).
		Where("product_id = ?", id).
		Order("seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ledger: get history %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: id %d", provenance.ErrProductNotFound, id)
	}

	out := make([]provenance.CustodyEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := rowToEvent(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) ProductCount(ctx context.Context) (uint64, error) {
	var max *uint64
	err := s.db.WithContext(ctx).
		Model(&ProductRow{}).
		Select("MAX(id)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("ledger: product count: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ── Writes ───────────────────────────────────────────────────────────────────

func (s *Store) CreateProduct(ctx context.Context, reg provenance.Registration, caller provenance.Address) (provenance.Receipt, error) {
	if !reg.Manufactured.Actor.Equal(caller) {
		return provenance.Receipt{}, fmt.Errorf("%w: creator %s is not the manufactured actor", provenance.ErrLedgerRejected, caller)
	}
	if reg.Manufactured.Kind != provenance.KindManufactured {
		return provenance.Receipt{}, fmt.Errorf("%w: first event must be MANUFACTURED", provenance.ErrLedgerRejected)
	}
	if reg.Serial == "" {
		return provenance.Receipt{}, fmt.Errorf("%w: empty serial", provenance.ErrLedgerRejected)
	}
	candidate := provenance.Product{
		Serial:       reg.Serial,
		Descriptor:   reg.Descriptor,
		Manufacturer: caller.Normalized(),
	}
	if !provenance.VerifyEventSignature(candidate, []provenance.CustodyEvent{reg.Manufactured}, 0) {
		return provenance.Receipt{}, fmt.Errorf("%w: %w: manufacturer attestation", provenance.ErrLedgerRejected, provenance.ErrSignatureInvalid)
	}

	retailers, err := marshalRetailers(reg.AllowedRetailers)
	if err != nil {
		return provenance.Receipt{}, err
	}

	row := ProductRow{
		Serial:              reg.Serial,
		Name:                reg.Descriptor.Name,
		Brand:               reg.Descriptor.Brand,
		Description:         reg.Descriptor.Description,
		ImageURL:            reg.Descriptor.ImageURL,
		ManufacturerName:    reg.ManufacturerName,
		ManufacturerAddress: string(caller.Normalized()),
		Retailers:           retailers,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("ledger: create product: %w", err)
		}
		return tx.Create(eventToRow(row.ID, 0, reg.Manufactured)).Error
	})
	if err != nil {
		return provenance.Receipt{}, err
	}

	return provenance.Receipt{
		TxID: uuid.NewString(),
		Logs: []provenance.ReceiptLog{{Name: provenance.LogProductCreated, ProductID: row.ID}},
	}, nil
}

func (s *Store) AppendCustodyEvent(ctx context.Context, id uint64, ev provenance.CustodyEvent, caller provenance.Address) (provenance.Receipt, error) {
	if ev.Kind != provenance.KindRetailReceived {
		return provenance.Receipt{}, fmt.Errorf("%w: only RETAIL_RECEIVED may be appended", provenance.ErrLedgerRejected)
	}
	if !ev.Actor.Equal(caller) {
		return provenance.Receipt{}, fmt.Errorf("%w: event actor %s is not the caller", provenance.ErrLedgerRejected, ev.Actor)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProductRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id %d", provenance.ErrProductNotFound, id)
			}
			return fmt.Errorf("ledger: append: load product: %w", err)
		}

		product, err := rowToProduct(row)
		if err != nil {
			return err
		}
		if product.Sold {
			return fmt.Errorf("%w: %w: product %d", provenance.ErrLedgerRejected, provenance.ErrAlreadySold, id)
		}
		if !product.RetailerAllowed(caller) {
			return fmt.Errorf("%w: %w: %s", provenance.ErrLedgerRejected, provenance.ErrUnauthorizedRetailer, caller)
		}

		var first EventRow
		if err := tx.Where("product_id = ? AND seq = 0", id).First(&first).Error; err != nil {
			return fmt.Errorf("ledger: append: load manufactured event: %w", err)
		}
		manufactured, err := rowToEvent(first)
		if err != nil {
			return err
		}
		if !provenance.VerifyEventSignature(product, []provenance.CustodyEvent{manufactured, ev}, 1) {
			return fmt.Errorf("%w: %w: retailer receipt", provenance.ErrLedgerRejected, provenance.ErrSignatureInvalid)
		}

		var seq int64
		if err := tx.Model(&EventRow{}).Where("product_id = ?", id).Count(&seq).Error; err != nil {
			return fmt.Errorf("ledger: append: count events: %w", err)
		}
		return tx.Create(eventToRow(id, int(seq), ev)).Error
	})
	if err != nil {
		return provenance.Receipt{}, err
	}
	return provenance.Receipt{TxID: uuid.NewString()}, nil
}

func (s *Store) MarkSold(ctx context.Context, id uint64, caller provenance.Address) (provenance.Receipt, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ProductRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: id %d", provenance.ErrProductNotFound, id)
			}
			return fmt.Errorf("ledger: mark sold: load product: %w", err)
		}
		if row.Sold {
			return fmt.Errorf("%w: %w: product %d", provenance.ErrLedgerRejected, provenance.ErrAlreadySold, id)
		}

		var last EventRow
		if err := tx.Where("product_id = ?", id).Order("seq desc").First(&last).Error; err != nil {
			return fmt.Errorf("ledger: mark sold: load holder: %w", err)
		}
		if !provenance.Address(last.ActorAddress).Equal(caller) {
			return fmt.Errorf("%w: %s is not the current holder", provenance.ErrLedgerRejected, caller)
		}

		return tx.Model(&ProductRow{}).Where("id = ?", id).Update("sold", true).Error
	})
	if err != nil {
		return provenance.Receipt{}, err
	}
	return provenance.Receipt{TxID: uuid.NewString()}, nil
}

// ── Row mapping ──────────────────────────────────────────────────────────────

func rowToProduct(row ProductRow) (provenance.Product, error) {
	var retailers []string
	if row.Retailers != "" {
		if err := json.Unmarshal([]byte(row.Retailers), &retailers); err != nil {
			return provenance.Product{}, fmt.Errorf("ledger: product %d: bad retailer list: %w", row.ID, err)
		}
	}
	allowed := make([]provenance.Address, 0, len(retailers))
	for _, r := range retailers {
		allowed = append(allowed, provenance.Address(r).Normalized())
	}

	return provenance.Product{
		ID:     row.ID,
		Serial: row.Serial,
		Descriptor: provenance.Descriptor{
			Name:        row.Name,
			Brand:       row.Brand,
			Description: row.Description,
			ImageURL:    row.ImageURL,
		},
		ManufacturerName: row.ManufacturerName,
		Manufacturer:     provenance.Address(row.ManufacturerAddress),
		AllowedRetailers: allowed,
		Sold:             row.Sold,
	}, nil
}

func rowToEvent(row EventRow) (provenance.CustodyEvent, error) {
	t, err := provenance.ParseCanonicalTime(row.OccurredAt)
	if err != nil {
		return provenance.CustodyEvent{}, fmt.Errorf("ledger: event %d: bad timestamp %q: %w", row.ID, row.OccurredAt, err)
	}
	return provenance.CustodyEvent{
		Kind:      provenance.EventKind(row.Kind),
		Time:      t,
		Location:  row.Location,
		Entity:    row.Entity,
		Actor:     provenance.Address(row.ActorAddress),
		Signature: row.Signature,
	}, nil
}

func eventToRow(productID uint64, seq int, ev provenance.CustodyEvent) *EventRow {
	return &EventRow{
		ProductID:    productID,
		Seq:          seq,
		Kind:         string(ev.Kind),
		OccurredAt:   provenance.CanonicalTime(ev.Time),
		Location:     ev.Location,
		Entity:       ev.Entity,
		ActorAddress: string(ev.Actor.Normalized()),
		Signature:    ev.Signature,
	}
}

func marshalRetailers(addrs []provenance.Address) (string, error) {
	if len(addrs) == 0 {
		return "[]", nil
	}
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if !a.Valid() {
			return "", fmt.Errorf("%w: invalid retailer address %q", provenance.ErrLedgerRejected, a)
		}
		list = append(list, string(a.Normalized()))
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal retailers: %w", err)
	}
	return string(b), nil
}
