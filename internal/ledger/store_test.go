package ledger_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shashiranjanraj/veritas/internal/ledger"
	"github.com/shashiranjanraj/veritas/internal/provenance"
)

func newStore(t *testing.T) *ledger.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := ledger.New(db)
	require.NoError(t, err)
	return s
}

// identity is a signing-capable test actor. Addresses that never need to
// sign anything use newAddr instead.
type identity struct {
	key  ed25519.PrivateKey
	addr provenance.Address
}

func newIdentity(t *testing.T) identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return identity{key: priv, addr: provenance.AddressFromPublicKey(pub)}
}

func (id identity) sign(payload []byte) string {
	return hex.EncodeToString(ed25519.Sign(id.key, payload))
}

func newAddr(t *testing.T) provenance.Address {
	t.Helper()
	return newIdentity(t).addr
}

var jacketDescriptor = provenance.Descriptor{
	Name:  "Alpine Jacket",
	Brand: "Northpeak",
}

func registration(serial string, mfg identity, retailers ...provenance.Address) provenance.Registration {
	reg := provenance.Registration{
		Serial:           serial,
		Descriptor:       jacketDescriptor,
		ManufacturerName: "Northpeak Outdoors",
		AllowedRetailers: retailers,
		Manufactured: provenance.CustodyEvent{
			Kind:     provenance.KindManufactured,
			Time:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Location: "Hanoi",
			Entity:   "Northpeak Outdoors",
			Actor:    mfg.addr,
		},
	}
	reg.Manufactured.Signature = mfg.sign(provenance.ManufacturerPayload(serial, jacketDescriptor))
	return reg
}

func retailEvent(retailer identity, serial string, manufactured provenance.CustodyEvent) provenance.CustodyEvent {
	ev := provenance.CustodyEvent{
		Kind:     provenance.KindRetailReceived,
		Time:     time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC),
		Location: "Oslo",
		Entity:   "Fjell Sport",
		Actor:    retailer.addr,
	}
	ev.Signature = retailer.sign(provenance.RetailerPayload(serial, jacketDescriptor, manufactured))
	return ev
}

func TestCreateProductReceiptCarriesID(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)

	rcpt, err := s.CreateProduct(context.Background(), registration("SN-1", mfg), mfg.addr)
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, provenance.LogProductCreated, rcpt.Logs[0].Name)
	assert.NotEmpty(t, rcpt.TxID)

	id := rcpt.Logs[0].ProductID
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "SN-1", p.Serial)
	assert.Equal(t, "Northpeak", p.Descriptor.Brand)
	assert.True(t, p.Manufacturer.Equal(mfg.addr))
	assert.False(t, p.Sold)

	history, err := s.GetHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, provenance.KindManufactured, history[0].Kind)
}

func TestCreateProductRejectsMismatchedCreator(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)
	other := newAddr(t)

	_, err := s.CreateProduct(context.Background(), registration("SN-2", mfg), other)
	assert.ErrorIs(t, err, provenance.ErrLedgerRejected)
}

func TestCreateProductRejectsBadAttestation(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)

	reg := registration("SN-2b", mfg)
	reg.Manufactured.Signature = "deadbeef"

	_, err := s.CreateProduct(context.Background(), reg, mfg.addr)
	assert.ErrorIs(t, err, provenance.ErrLedgerRejected)
	assert.ErrorIs(t, err, provenance.ErrSignatureInvalid)

	// A signature by someone other than the creator fails the same way.
	reg = registration("SN-2c", mfg)
	reg.Manufactured.Signature = newIdentity(t).sign(provenance.ManufacturerPayload("SN-2c", jacketDescriptor))
	_, err = s.CreateProduct(context.Background(), reg, mfg.addr)
	assert.ErrorIs(t, err, provenance.ErrSignatureInvalid)
}

func TestCreateProductRejectsDuplicateSerial(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)

	_, err := s.CreateProduct(context.Background(), registration("SN-3", mfg), mfg.addr)
	require.NoError(t, err)
	_, err = s.CreateProduct(context.Background(), registration("SN-3", mfg), mfg.addr)
	assert.Error(t, err)
}

func TestGetProductNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetProduct(context.Background(), 404)
	assert.ErrorIs(t, err, provenance.ErrProductNotFound)
	_, err = s.GetHistory(context.Background(), 404)
	assert.ErrorIs(t, err, provenance.ErrProductNotFound)
}

func TestProductCountTracksHighestID(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)

	n, err := s.ProductCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.CreateProduct(context.Background(), registration("SN-4", mfg), mfg.addr)
	require.NoError(t, err)
	rcpt, err := s.CreateProduct(context.Background(), registration("SN-5", mfg), mfg.addr)
	require.NoError(t, err)

	n, err = s.ProductCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rcpt.Logs[0].ProductID, n)
}

func TestAppendCustodyEventEnforcesAllowList(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)
	listed := newIdentity(t)
	unlisted := newIdentity(t)

	reg := registration("SN-6", mfg, listed.addr)
	rcpt, err := s.CreateProduct(context.Background(), reg, mfg.addr)
	require.NoError(t, err)
	id := rcpt.Logs[0].ProductID

	_, err = s.AppendCustodyEvent(context.Background(), id, retailEvent(unlisted, "SN-6", reg.Manufactured), unlisted.addr)
	assert.ErrorIs(t, err, provenance.ErrLedgerRejected)
	assert.ErrorIs(t, err, provenance.ErrUnauthorizedRetailer)

	// Rejection leaves history untouched.
	history, err := s.GetHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = s.AppendCustodyEvent(context.Background(), id, retailEvent(listed, "SN-6", reg.Manufactured), listed.addr)
	require.NoError(t, err)

	history, err = s.GetHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, provenance.KindRetailReceived, history[1].Kind)
	assert.True(t, history[1].Actor.Equal(listed.addr))
}

func TestAppendCustodyEventRejectsBadSignature(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)
	listed := newIdentity(t)

	reg := registration("SN-6b", mfg, listed.addr)
	rcpt, err := s.CreateProduct(context.Background(), reg, mfg.addr)
	require.NoError(t, err)
	id := rcpt.Logs[0].ProductID

	// Allow-listed retailer, garbage signature: the receipt must never
	// make it onto the append-only history.
	ev := retailEvent(listed, "SN-6b", reg.Manufactured)
	ev.Signature = "deadbeef"

	_, err = s.AppendCustodyEvent(context.Background(), id, ev, listed.addr)
	assert.ErrorIs(t, err, provenance.ErrLedgerRejected)
	assert.ErrorIs(t, err, provenance.ErrSignatureInvalid)

	history, err := s.GetHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// A valid signature over the wrong product is no better.
	ev = retailEvent(listed, "SN-6b", reg.Manufactured)
	ev.Signature = listed.sign(provenance.RetailerPayload("SN-other", jacketDescriptor, reg.Manufactured))
	_, err = s.AppendCustodyEvent(context.Background(), id, ev, listed.addr)
	assert.ErrorIs(t, err, provenance.ErrSignatureInvalid)
}

func TestAppendCustodyEventRejectsActorImpersonation(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)
	listed := newIdentity(t)

	reg := registration("SN-7", mfg, listed.addr)
	rcpt, err := s.CreateProduct(context.Background(), reg, mfg.addr)
	require.NoError(t, err)

	ev := retailEvent(listed, "SN-7", reg.Manufactured)
	_, err = s.AppendCustodyEvent(context.Background(), rcpt.Logs[0].ProductID, ev, newAddr(t))
	assert.ErrorIs(t, err, provenance.ErrLedgerRejected)
}

func TestMarkSoldOnlyByHolderAndOnce(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)
	retailer := newIdentity(t)

	reg := registration("SN-8", mfg, retailer.addr)
	rcpt, err := s.CreateProduct(context.Background(), reg, mfg.addr)
	require.NoError(t, err)
	id := rcpt.Logs[0].ProductID

	_, err = s.AppendCustodyEvent(context.Background(), id, retailEvent(retailer, "SN-8", reg.Manufactured), retailer.addr)
	require.NoError(t, err)

	// The manufacturer no longer holds the product.
	_, err = s.MarkSold(context.Background(), id, mfg.addr)
	assert.ErrorIs(t, err, provenance.ErrLedgerRejected)

	_, err = s.MarkSold(context.Background(), id, retailer.addr)
	require.NoError(t, err)

	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, p.Sold)

	_, err = s.MarkSold(context.Background(), id, retailer.addr)
	assert.ErrorIs(t, err, provenance.ErrAlreadySold)

	_, err = s.AppendCustodyEvent(context.Background(), id, retailEvent(retailer, "SN-8", reg.Manufactured), retailer.addr)
	assert.ErrorIs(t, err, provenance.ErrAlreadySold)
}

func TestSoldStateVisibleThroughGetProduct(t *testing.T) {
	s := newStore(t)
	mfg := newIdentity(t)

	rcpt, err := s.CreateProduct(context.Background(), registration("SN-9", mfg), mfg.addr)
	require.NoError(t, err)
	id := rcpt.Logs[0].ProductID

	_, err = s.MarkSold(context.Background(), id, mfg.addr)
	require.NoError(t, err)

	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, p.Sold)
}

func TestStoreErrorsAreNotSpuriouslyRetryable(t *testing.T) {
	s := newStore(t)
	r := ledger.WithRetry(s, 3, time.Millisecond)

	start := time.Now()
	_, err := r.GetProduct(context.Background(), 999)
	assert.ErrorIs(t, err, provenance.ErrProductNotFound)
	assert.False(t, errors.Is(err, provenance.ErrLedgerUnavailable))
	assert.Less(t, time.Since(start), time.Second)
}
