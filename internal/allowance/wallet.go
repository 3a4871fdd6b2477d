// Package allowance is the client-side ephemeral wallet that signs payment
// attestations. Its key is generated on the device, sealed under a user PIN and
// never leaves the process in plaintext.
package allowance

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/crypto"
	"github.com/AlexZinkM/allowance-gate/internal/logging"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/payment"
)

// ErrNotLoaded is returned by signing operations before Create or a successful Load.
var ErrNotLoaded = errors.New("wallet not loaded")

// Wallet holds at most one unlocked keypair in memory.
type Wallet struct {
	mu      sync.Mutex
	storage Storage
	kdf     model.KDFParams
	key     solana.PrivateKey
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithKDF overrides the Argon2id cost for newly created wallets.
func WithKDF(p model.KDFParams) Option {
	return func(w *Wallet) { w.kdf = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Wallet) { w.logger = l }
}

// New returns an unloaded wallet backed by storage.
func New(storage Storage, opts ...Option) *Wallet {
	w := &Wallet{
		storage: storage,
		kdf:     crypto.DefaultKDF,
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create generates a fresh keypair, seals it under pin and persists it, replacing
// any previous record. The new key becomes the loaded key.
// pin must be []byte for security (caller should zero it after use).
func (w *Wallet) Create(pin []byte) (string, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate keypair: %w", err)
	}
	pub := key.PublicKey()

	sealed, err := crypto.Seal(key, pin, pub.Bytes(), w.kdf)
	if err != nil {
		clear(key)
		return "", fmt.Errorf("failed to seal wallet: %w", err)
	}

	record := model.AllowanceWalletData{
		PublicKey:       pub.String(),
		EncryptedSecret: base64.StdEncoding.EncodeToString(sealed.Ciphertext),
		IV:              base64.StdEncoding.EncodeToString(sealed.IV),
		Salt:            base64.StdEncoding.EncodeToString(sealed.Salt),
		KDF:             sealed.KDF,
		CreatedAt:       w.now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(record)
	if err != nil {
		clear(key)
		return "", fmt.Errorf("failed to marshal wallet: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.storage.Put(StorageKey, data); err != nil {
		clear(key)
		return "", fmt.Errorf("failed to store wallet: %w", err)
	}
	w.setKeyLocked(key)
	w.logger.Info("allowance wallet created", "publicKey", record.PublicKey)
	return record.PublicKey, nil
}

// Load unlocks the stored wallet with pin. Any failure (no record, corrupt record,
// wrong PIN) returns false and leaves the wallet as it was.
func (w *Wallet) Load(pin []byte) bool {
	key, err := w.unseal(pin)
	if err != nil {
		w.logger.Debug("allowance wallet load failed", "error", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setKeyLocked(key)
	return true
}

func (w *Wallet) unseal(pin []byte) (solana.PrivateKey, error) {
	w.mu.Lock()
	data, err := w.storage.Get(StorageKey)
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var record model.AllowanceWalletData
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse wallet record: %w", err)
	}
	pub, err := solana.PublicKeyFromBase58(record.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key in record: %w", err)
	}

	sealed := &crypto.SealedSecret{KDF: record.KDF}
	if sealed.Ciphertext, err = base64.StdEncoding.DecodeString(record.EncryptedSecret); err != nil {
		return nil, fmt.Errorf("invalid encryptedSecret: %w", err)
	}
	if sealed.IV, err = base64.StdEncoding.DecodeString(record.IV); err != nil {
		return nil, fmt.Errorf("invalid iv: %w", err)
	}
	if sealed.Salt, err = base64.StdEncoding.DecodeString(record.Salt); err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}

	secret, err := crypto.Open(sealed, pin, pub.Bytes())
	if err != nil {
		return nil, err
	}
	// We store full 64-byte key
	if len(secret) != 64 {
		clear(secret)
		return nil, errors.New("invalid private key length")
	}
	key := solana.PrivateKey(secret)
	if !key.PublicKey().Equals(pub) {
		clear(secret)
		return nil, errors.New("private key does not match address")
	}
	return key, nil
}

// Open loads the stored wallet, creating a new one when loading fails.
// A wrong PIN therefore replaces the stored wallet; its balance stays with the old key.
func (w *Wallet) Open(pin []byte) (string, error) {
	if w.Load(pin) {
		return w.PublicKey(), nil
	}
	return w.Create(pin)
}

// Exists reports whether a wallet record is stored.
func (w *Wallet) Exists() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.storage.Get(StorageKey)
	return err == nil
}

func (w *Wallet) setKeyLocked(key solana.PrivateKey) {
	if w.key != nil {
		clear(w.key)
	}
	w.key = key
}

// PublicKey returns the loaded public key in base58, or "" when not loaded.
func (w *Wallet) PublicKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return ""
	}
	return w.key.PublicKey().String()
}

// SignMessage returns the detached ed25519 signature of msg in base58.
func (w *Wallet) SignMessage(msg []byte) (string, error) {
	sig, err := w.sign(msg)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (w *Wallet) sign(msg []byte) (solana.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return solana.Signature{}, ErrNotLoaded
	}
	return w.key.Sign(msg)
}

// SignRequirements answers a payment challenge with a proof over the canonical payload.
func (w *Wallet) SignRequirements(req *model.PaymentRequirements, now time.Time) (*model.PaymentProof, error) {
	payer := w.PublicKey()
	if payer == "" {
		return nil, ErrNotLoaded
	}
	ts := now.UnixMilli()
	payload, err := payment.CanonicalPayload(req.PaymentID, req.Amount, req.TokenMint, ts)
	if err != nil {
		return nil, err
	}
	sig, err := w.SignMessage(payload)
	if err != nil {
		return nil, err
	}
	return &model.PaymentProof{
		PaymentID: req.PaymentID,
		Signature: sig,
		Payer:     payer,
		Timestamp: ts,
	}, nil
}

// TxSigner exposes the loaded key as a transaction signer. The signer stops working
// once the wallet is unloaded.
func (w *Wallet) TxSigner() (client.Signer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return nil, ErrNotLoaded
	}
	return &txSigner{wallet: w, pub: w.key.PublicKey()}, nil
}

// Unload wipes the in-memory key.
func (w *Wallet) Unload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setKeyLocked(nil)
}

type txSigner struct {
	wallet *Wallet
	pub    solana.PublicKey
}

func (s *txSigner) PublicKey() solana.PublicKey {
	return s.pub
}

func (s *txSigner) Sign(payload []byte) (solana.Signature, error) {
	s.wallet.mu.Lock()
	defer s.wallet.mu.Unlock()
	if s.wallet.key == nil || !s.wallet.key.PublicKey().Equals(s.pub) {
		return solana.Signature{}, ErrNotLoaded
	}
	return s.wallet.key.Sign(payload)
}
