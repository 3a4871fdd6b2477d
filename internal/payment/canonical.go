// Package payment implements the pay-per-call handshake: requirement issuance,
// proof verification, single-use state tracking and the receipt ledger.
package payment

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// signedPayload is the exact object an allowance wallet signs.
type signedPayload struct {
	PaymentID string `json:"paymentId"`
	Amount    string `json:"amount"`
	TokenMint string `json:"tokenMint"`
	Timestamp int64  `json:"timestamp"`
}

// CanonicalPayload returns the RFC 8785 canonical JSON bytes of
// {paymentId, amount, tokenMint, timestamp}. Signer and verifier both use it.
func CanonicalPayload(paymentID, amount, tokenMint string, timestampMs int64) ([]byte, error) {
	raw, err := json.Marshal(signedPayload{
		PaymentID: paymentID,
		Amount:    amount,
		TokenMint: tokenMint,
		Timestamp: timestampMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return out, nil
}
