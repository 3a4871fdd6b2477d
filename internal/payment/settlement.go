package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// TransferVerifier is the ledger read needed by OnchainChecker.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, sig solana.Signature, check client.TransferCheck) error
}

// OnchainChecker accepts a proof only when proof.Transaction is a confirmed transfer of at
// least the required amount of the token mint to the recipient, signed by the payer and
// carrying the payment id as memo.
type OnchainChecker struct {
	ledger   TransferVerifier
	decimals int
}

// NewOnchainChecker creates a checker; decimals is the payment token's precision.
func NewOnchainChecker(ledger TransferVerifier, decimals int) *OnchainChecker {
	return &OnchainChecker{ledger: ledger, decimals: decimals}
}

// VerifyPayment implements SettlementChecker.
func (c *OnchainChecker) VerifyPayment(ctx context.Context, req *model.PaymentRequirements, proof *model.PaymentProof) error {
	if proof.Transaction == "" {
		return errors.New("proof carries no transaction")
	}
	sig, err := solana.SignatureFromBase58(proof.Transaction)
	if err != nil {
		return fmt.Errorf("invalid transaction signature: %w", err)
	}
	recipient, err := solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(req.TokenMint)
	if err != nil {
		return fmt.Errorf("invalid token mint: %w", err)
	}
	payer, err := solana.PublicKeyFromBase58(proof.Payer)
	if err != nil {
		return fmt.Errorf("invalid payer: %w", err)
	}
	amount, err := common.ParseUnits(req.Amount, c.decimals)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	err = c.ledger.VerifyTransfer(ctx, sig, client.TransferCheck{
		Recipient: recipient,
		Mint:      mint,
		MinAmount: amount,
		Memo:      req.PaymentID,
		Payer:     payer,
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, client.ErrTransferMismatch) ||
		errors.Is(err, client.ErrTransactionFailed) ||
		errors.Is(err, client.ErrTransactionNotFound) {
		return err
	}
	return apperr.Upstream("solana rpc unavailable", err)
}

var _ SettlementChecker = (*OnchainChecker)(nil)
