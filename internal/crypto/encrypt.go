package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

const (
	saltLen  = 16
	nonceLen = 12 // 96-bit GCM IV
	keyLen   = 32 // AES-256

	// Stored records are untrusted; these cap what a record can make us spend.
	maxKDFTime      = 10
	maxKDFMemoryKiB = 1 << 20 // 1 GiB
	maxKDFThreads   = 16
)

// DefaultKDF is the Argon2id cost used for new allowance wallets.
//
// m=64MiB, t=3, p=4 keeps a PIN unlock under a second on laptops and phones
// while making offline guessing of short PINs expensive.
var DefaultKDF = model.KDFParams{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
}

// SealedSecret is a secret encrypted under a PIN-derived key.
type SealedSecret struct {
	Ciphertext []byte
	IV         []byte
	Salt       []byte
	KDF        model.KDFParams
}

// Seal encrypts secret under a key derived from pin with a fresh salt and IV.
// aad is authenticated but not encrypted (the wallet binds its public key here).
// pin must be []byte for security (caller should zero it after use).
func Seal(secret, pin, aad []byte, params model.KDFParams) (*SealedSecret, error) {
	if len(pin) == 0 {
		return nil, errors.New("pin cannot be empty")
	}
	if err := validateKDF(params); err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	iv := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	key := deriveKey(pin, salt, params)
	defer clear(key)

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return &SealedSecret{
		Ciphertext: aesGCM.Seal(nil, iv, secret, aad),
		IV:         iv,
		Salt:       salt,
		KDF:        params,
	}, nil
}

func deriveKey(pin, salt []byte, params model.KDFParams) []byte {
	return argon2.IDKey(pin, salt, params.Time, params.MemoryKiB, params.Threads, keyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

func validateKDF(p model.KDFParams) error {
	if p.Time == 0 || p.MemoryKiB < 8*uint32(p.Threads) || p.Threads == 0 ||
		p.Time > maxKDFTime || p.MemoryKiB > maxKDFMemoryKiB || p.Threads > maxKDFThreads {
		return fmt.Errorf("invalid kdf parameters: time=%d memory=%dKiB threads=%d", p.Time, p.MemoryKiB, p.Threads)
	}
	return nil
}
