package crypto

import (
	"errors"
	"fmt"
)

// ErrInvalidPIN is returned when authentication fails. A wrong PIN and a
// tampered record are indistinguishable at this layer.
var ErrInvalidPIN = errors.New("invalid pin")

// Open decrypts a sealed secret. The returned slice holds key material:
// caller must clear it after use.
func Open(s *SealedSecret, pin, aad []byte) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nothing to open")
	}
	if len(s.IV) != nonceLen {
		return nil, fmt.Errorf("invalid iv length %d", len(s.IV))
	}
	if len(s.Salt) == 0 {
		return nil, errors.New("missing salt")
	}
	if err := validateKDF(s.KDF); err != nil {
		return nil, err
	}

	key := deriveKey(pin, s.Salt, s.KDF)
	defer clear(key)

	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, s.IV, s.Ciphertext, aad)
	if err != nil {
		return nil, ErrInvalidPIN
	}
	return plaintext, nil
}
