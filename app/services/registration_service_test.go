package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/veritas/app/services"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/storage"
)

func registrationInput(retailers ...provenance.Address) services.RegistrationInput {
	in := services.RegistrationInput{
		Serial:           "MW-2002",
		Name:             "Field Watch",
		Brand:            "Meridian",
		ManufacturerName: "Meridian Time Co",
		Location:         "Bergen plant",
	}
	for _, r := range retailers {
		in.AllowedRetailers = append(in.AllowedRetailers, string(r))
	}
	return in
}

func newRegistrationEnv(t *testing.T) (*fakeLedger, *provenance.Keyring, provenance.Address) {
	t.Helper()
	t.Setenv("STORAGE_LOCAL_ROOT", t.TempDir())
	storage.Connect()

	kr := provenance.NewKeyring()
	mfg, err := kr.Generate()
	require.NoError(t, err)
	return newFakeLedger(), kr, mfg
}

func TestRegisterUsesReceiptID(t *testing.T) {
	f, kr, mfg := newRegistrationEnv(t)
	retailer, err := kr.Generate()
	require.NoError(t, err)

	svc := services.NewRegistrationService(f, kr)
	out, err := svc.Register(context.Background(), registrationInput(retailer), mfg)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), out.ProductID)
	assert.Equal(t, "tx-1", out.TxID)
	assert.NotEmpty(t, out.LabelURL)

	// The recorded attestation must verify against the manufacturer key.
	p, err := f.GetProduct(context.Background(), out.ProductID)
	require.NoError(t, err)
	history, err := f.GetHistory(context.Background(), out.ProductID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, provenance.VerifyEventSignature(p, history, 0))
}

// A creation receipt without an event log falls back to re-reading the
// product count.
func TestRegisterFallsBackWithoutReceiptLog(t *testing.T) {
	f, kr, mfg := newRegistrationEnv(t)
	f.receiptLogs = false

	svc := services.NewRegistrationService(f, kr)
	out, err := svc.Register(context.Background(), registrationInput(), mfg)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.ProductID)
}

func TestRegisterRejectsUnverifiableSignature(t *testing.T) {
	f, _, mfg := newRegistrationEnv(t)

	svc := services.NewRegistrationService(f, garbageSigner{addr: mfg})
	_, err := svc.Register(context.Background(), registrationInput(), mfg)
	assert.ErrorIs(t, err, provenance.ErrSignatureInvalid)
	assert.Empty(t, f.products)
}

func TestRegisterRejectsInvalidRetailerAddress(t *testing.T) {
	f, kr, mfg := newRegistrationEnv(t)

	in := registrationInput()
	in.AllowedRetailers = []string{"not-a-hex-address"}

	svc := services.NewRegistrationService(f, kr)
	_, err := svc.Register(context.Background(), in, mfg)
	assert.Error(t, err)
	assert.Empty(t, f.products, "nothing may reach the ledger on bad input")
}

func TestRegisterDeduplicatesRetailers(t *testing.T) {
	f, kr, mfg := newRegistrationEnv(t)
	retailer, err := kr.Generate()
	require.NoError(t, err)

	in := registrationInput(retailer, retailer)

	svc := services.NewRegistrationService(f, kr)
	out, err := svc.Register(context.Background(), in, mfg)
	require.NoError(t, err)

	p, err := f.GetProduct(context.Background(), out.ProductID)
	require.NoError(t, err)
	assert.Len(t, p.AllowedRetailers, 1)
}

func TestLabelRebuildsFromLedger(t *testing.T) {
	f, kr, mfg := newRegistrationEnv(t)

	svc := services.NewRegistrationService(f, kr)
	out, err := svc.Register(context.Background(), registrationInput(), mfg)
	require.NoError(t, err)

	label, err := svc.Label(context.Background(), out.ProductID)
	require.NoError(t, err)

	raw, err := label.Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	_, err = svc.Label(context.Background(), out.ProductID+99)
	assert.ErrorIs(t, err, provenance.ErrProductNotFound)
}
