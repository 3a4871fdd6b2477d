package allowance

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/payment"
)

var fastKDF = model.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

func newTestWallet(t *testing.T, storage Storage) *Wallet {
	t.Helper()
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return New(storage, WithKDF(fastKDF))
}

func TestCreateLoadRoundTrip(t *testing.T) {
	storage := NewMemoryStorage()
	w := newTestWallet(t, storage)

	pub, err := w.Create([]byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, pub, w.PublicKey())

	msg := []byte("hello")
	sig1, err := w.SignMessage(msg)
	require.NoError(t, err)

	fresh := newTestWallet(t, storage)
	assert.Equal(t, "", fresh.PublicKey())
	require.True(t, fresh.Load([]byte("1234")))
	assert.Equal(t, pub, fresh.PublicKey())

	sig2, err := fresh.SignMessage(msg)
	require.NoError(t, err)
	// ed25519 is deterministic
	assert.Equal(t, sig1, sig2)

	parsed, err := solana.SignatureFromBase58(sig2)
	require.NoError(t, err)
	assert.True(t, parsed.Verify(solana.MustPublicKeyFromBase58(pub), msg))
}

func TestRecordFormat(t *testing.T) {
	storage := NewMemoryStorage()
	w := newTestWallet(t, storage)
	pub, err := w.Create([]byte("1234"))
	require.NoError(t, err)

	raw, err := storage.Get(StorageKey)
	require.NoError(t, err)

	var record model.AllowanceWalletData
	require.NoError(t, json.Unmarshal(raw, &record))
	assert.Equal(t, pub, record.PublicKey)
	assert.Equal(t, fastKDF, record.KDF)
	assert.NotEmpty(t, record.EncryptedSecret)
	assert.NotEmpty(t, record.Salt)
	assert.NotEmpty(t, record.IV)
	assert.NotEmpty(t, record.CreatedAt)
	assert.NotContains(t, string(raw), "privateKey")
}

func TestLoadWrongPINLeavesStateUnchanged(t *testing.T) {
	storage := NewMemoryStorage()
	w := newTestWallet(t, storage)
	pub, err := w.Create([]byte("1234"))
	require.NoError(t, err)

	assert.False(t, w.Load([]byte("9999")))
	assert.Equal(t, pub, w.PublicKey())

	fresh := newTestWallet(t, storage)
	assert.False(t, fresh.Load([]byte("9999")))
	assert.Equal(t, "", fresh.PublicKey())
	_, err = fresh.SignMessage([]byte("x"))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadWithoutRecord(t *testing.T) {
	w := newTestWallet(t, nil)
	assert.False(t, w.Load([]byte("1234")))
	assert.False(t, w.Exists())
}

func TestLoadRejectsTamperedPublicKey(t *testing.T) {
	storage := NewMemoryStorage()
	w := newTestWallet(t, storage)
	_, err := w.Create([]byte("1234"))
	require.NoError(t, err)

	raw, _ := storage.Get(StorageKey)
	var record model.AllowanceWalletData
	require.NoError(t, json.Unmarshal(raw, &record))
	record.PublicKey = solana.NewWallet().PublicKey().String()
	raw, _ = json.Marshal(record)
	require.NoError(t, storage.Put(StorageKey, raw))

	assert.False(t, newTestWallet(t, storage).Load([]byte("1234")))
}

func TestLoadRejectsOversizedKDF(t *testing.T) {
	storage := NewMemoryStorage()
	w := newTestWallet(t, storage)
	_, err := w.Create([]byte("1234"))
	require.NoError(t, err)

	raw, _ := storage.Get(StorageKey)
	var record model.AllowanceWalletData
	require.NoError(t, json.Unmarshal(raw, &record))

	for name, kdf := range map[string]model.KDFParams{
		"memory":  {Time: 1, MemoryKiB: 4294967295, Threads: 1},
		"time":    {Time: 4294967295, MemoryKiB: 64, Threads: 1},
		"threads": {Time: 1, MemoryKiB: 64 * 255, Threads: 255},
	} {
		t.Run(name, func(t *testing.T) {
			record.KDF = kdf
			raw, err := json.Marshal(record)
			require.NoError(t, err)
			require.NoError(t, storage.Put(StorageKey, raw))

			fresh := newTestWallet(t, storage)
			assert.False(t, fresh.Load([]byte("1234")))
			assert.Equal(t, "", fresh.PublicKey())
		})
	}
}

func TestCreateStorageFailure(t *testing.T) {
	storage := NewMemoryStorage()
	storage.PutErr = errors.New("disk full")
	w := newTestWallet(t, storage)

	_, err := w.Create([]byte("1234"))
	require.Error(t, err)
	assert.Equal(t, "", w.PublicKey())
}

func TestOpenFallsBackToCreate(t *testing.T) {
	storage := NewMemoryStorage()
	w := newTestWallet(t, storage)

	first, err := w.Open([]byte("1234"))
	require.NoError(t, err)

	again, err := newTestWallet(t, storage).Open([]byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, first, again)

	replaced, err := newTestWallet(t, storage).Open([]byte("0000"))
	require.NoError(t, err)
	assert.NotEqual(t, first, replaced)
}

func TestSignRequirements(t *testing.T) {
	w := newTestWallet(t, nil)
	req := &model.PaymentRequirements{
		PaymentID: "9b2f1c36-0c55-4a53-8f43-7d0f0f3d52e1",
		Amount:    "0.001",
		TokenMint: "Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr",
	}
	now := time.UnixMilli(1_700_000_000_123)

	_, err := w.SignRequirements(req, now)
	assert.ErrorIs(t, err, ErrNotLoaded)

	pub, err := w.Create([]byte("1234"))
	require.NoError(t, err)

	proof, err := w.SignRequirements(req, now)
	require.NoError(t, err)
	assert.Equal(t, req.PaymentID, proof.PaymentID)
	assert.Equal(t, pub, proof.Payer)
	assert.Equal(t, now.UnixMilli(), proof.Timestamp)

	payload, err := payment.CanonicalPayload(req.PaymentID, req.Amount, req.TokenMint, proof.Timestamp)
	require.NoError(t, err)
	sig := solana.MustSignatureFromBase58(proof.Signature)
	assert.True(t, sig.Verify(solana.MustPublicKeyFromBase58(pub), payload))
}

func TestTxSignerStopsAfterUnload(t *testing.T) {
	w := newTestWallet(t, nil)
	_, err := w.TxSigner()
	assert.ErrorIs(t, err, ErrNotLoaded)

	pub, err := w.Create([]byte("1234"))
	require.NoError(t, err)

	signer, err := w.TxSigner()
	require.NoError(t, err)
	assert.Equal(t, pub, signer.PublicKey().String())

	sig, err := signer.Sign([]byte("tx"))
	require.NoError(t, err)
	assert.True(t, sig.Verify(signer.PublicKey(), []byte("tx")))

	w.Unload()
	assert.Equal(t, "", w.PublicKey())
	_, err = signer.Sign([]byte("tx"))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allowance")
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)

	_, err = storage.Get(StorageKey)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, storage.Put(StorageKey, []byte(`{"a":1}`)))
	require.NoError(t, storage.Put(StorageKey, []byte(`{"a":2}`)))

	data, err := storage.Get(StorageKey)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	info, err := os.Stat(filepath.Join(dir, StorageKey+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, storage.Put("../escape", []byte("x")))
}

func TestWalletOnFileStorage(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	pub, err := newTestWallet(t, storage).Create([]byte("pin"))
	require.NoError(t, err)

	w := newTestWallet(t, storage)
	require.True(t, w.Load([]byte("pin")))
	assert.Equal(t, pub, w.PublicKey())
}

func TestFundingQR(t *testing.T) {
	pub := solana.NewWallet().PublicKey().String()
	png, err := FundingQRPNG(pub)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	encoded, err := FundingQR(pub)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)

	_, err = FundingQR("not-an-address")
	assert.Error(t, err)
}
