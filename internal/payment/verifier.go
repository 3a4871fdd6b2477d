package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

const (
	msgInvalidProof    = "invalid payment proof"
	msgPaymentRequired = "payment required"
)

// SettlementChecker confirms on the ledger that a proof's transaction actually
// paid the requirement.
type SettlementChecker interface {
	VerifyPayment(ctx context.Context, req *model.PaymentRequirements, proof *model.PaymentProof) error
}

// Verifier validates payment proofs against issued requirements.
type Verifier struct {
	store   StateStore
	ledger  ReceiptLedger
	checker SettlementChecker
	logger  *slog.Logger
	now     func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithSettlementChecker switches the verifier to the on-chain policy.
func WithSettlementChecker(c SettlementChecker) VerifierOption {
	return func(v *Verifier) { v.checker = c }
}

// WithLogger sets the verifier logger.
func WithLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier. Without a SettlementChecker the active policy is
// signature-only: a valid signature over the requirement acts as a capability token.
func NewVerifier(store StateStore, ledger ReceiptLedger, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		store:  store,
		ledger: ledger,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the active settlement policy name.
func (v *Verifier) Policy() string {
	if v.checker != nil {
		return config.PolicyOnchain
	}
	return config.PolicySignature
}

// ParseProof decodes and structurally validates an X-Payment header value.
func ParseProof(header string) (*model.PaymentProof, error) {
	var proof model.PaymentProof
	dec := json.NewDecoder(strings.NewReader(header))
	if err := dec.Decode(&proof); err != nil {
		return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof, fmt.Errorf("malformed json: %w", err))
	}
	if err := validateProof(&proof); err != nil {
		return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof, err)
	}
	return &proof, nil
}

func validateProof(p *model.PaymentProof) error {
	if _, err := uuid.Parse(p.PaymentID); err != nil {
		return fmt.Errorf("invalid paymentId: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(p.Payer); err != nil {
		return fmt.Errorf("invalid payer: %w", err)
	}
	if _, err := solana.SignatureFromBase58(p.Signature); err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if p.Timestamp <= 0 {
		return errors.New("missing timestamp")
	}
	if p.Transaction != "" {
		if _, err := solana.SignatureFromBase58(p.Transaction); err != nil {
			return fmt.Errorf("invalid transaction signature: %w", err)
		}
	}
	return nil
}

// Verify checks proof for tool and, on success, consumes the requirement and
// records a receipt. Errors are *apperr.Error of kind PaymentInvalid (restart the
// handshake) or PaymentRequired (requirement unknown, expired or consumed).
func (v *Verifier) Verify(ctx context.Context, tool string, proof *model.PaymentProof) (*model.PaymentReceipt, error) {
	if err := validateProof(proof); err != nil {
		return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof, err)
	}

	req, status, err := v.store.Get(ctx, proof.PaymentID)
	if err != nil {
		if errors.Is(err, ErrUnknownPayment) {
			return nil, apperr.Wrap(apperr.KindPaymentRequired, msgPaymentRequired, err)
		}
		return nil, fmt.Errorf("failed to load requirement: %w", err)
	}
	switch status {
	case model.PaymentStatusConsumed:
		return nil, apperr.Wrap(apperr.KindPaymentRequired, msgPaymentRequired, ErrPaymentConsumed)
	case model.PaymentStatusExpired:
		return nil, apperr.Wrap(apperr.KindPaymentRequired, msgPaymentRequired, ErrPaymentExpired)
	}

	if req.Tool != tool {
		return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof,
			fmt.Errorf("requirement issued for %s, not %s", req.Tool, tool))
	}
	if proof.Timestamp > req.ExpiresAt {
		return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof, errors.New("signed after expiry"))
	}
	if err := verifySignature(req, proof); err != nil {
		return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof, err)
	}

	if v.checker != nil {
		if err := v.checker.VerifyPayment(ctx, req, proof); err != nil {
			if apperr.KindOf(err) == apperr.KindUpstreamUnavailable {
				return nil, err
			}
			return nil, apperr.Wrap(apperr.KindPaymentInvalid, msgInvalidProof, fmt.Errorf("not settled on-chain: %w", err))
		}
	}

	now := v.now()
	consumed, err := v.store.Consume(ctx, proof.PaymentID, now)
	if err != nil {
		if errors.Is(err, ErrUnknownPayment) || errors.Is(err, ErrPaymentExpired) || errors.Is(err, ErrPaymentConsumed) {
			return nil, apperr.Wrap(apperr.KindPaymentRequired, msgPaymentRequired, err)
		}
		return nil, fmt.Errorf("failed to consume requirement: %w", err)
	}

	receipt := &model.PaymentReceipt{
		PaymentID: consumed.PaymentID,
		Amount:    consumed.Amount,
		TokenMint: consumed.TokenMint,
		Timestamp: now.UnixMilli(),
		Tool:      consumed.Tool,
		Signature: proof.Signature,
		Payer:     proof.Payer,
	}
	if v.ledger != nil {
		if err := v.ledger.Append(ctx, receipt); err != nil {
			// the requirement is already consumed; the caller is served regardless
			v.logger.ErrorContext(ctx, "failed to record payment receipt",
				"payment_id", receipt.PaymentID, "error", err)
		}
	}
	return receipt, nil
}

func verifySignature(req *model.PaymentRequirements, proof *model.PaymentProof) error {
	payer, err := solana.PublicKeyFromBase58(proof.Payer)
	if err != nil {
		return fmt.Errorf("invalid payer: %w", err)
	}
	sig, err := solana.SignatureFromBase58(proof.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	payload, err := CanonicalPayload(req.PaymentID, req.Amount, req.TokenMint, proof.Timestamp)
	if err != nil {
		return err
	}
	if !sig.Verify(payer, payload) {
		return errors.New("signature does not verify for payer")
	}
	return nil
}
