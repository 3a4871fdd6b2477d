package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/client"
)

type fakeTransferVerifier struct {
	got client.TransferCheck
	sig solana.Signature
	err error
}

func (f *fakeTransferVerifier) VerifyTransfer(_ context.Context, sig solana.Signature, check client.TransferCheck) error {
	f.sig = sig
	f.got = check
	return f.err
}

func TestOnchainCheckerBuildsTransferCheck(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	req := testRequirement(time.Minute)
	proof := signProof(t, key, req)
	txSig, err := key.Sign([]byte("transfer"))
	require.NoError(t, err)
	proof.Transaction = txSig.String()

	ledger := &fakeTransferVerifier{}
	require.NoError(t, NewOnchainChecker(ledger, 6).VerifyPayment(context.Background(), req, proof))

	assert.Equal(t, txSig, ledger.sig)
	assert.Equal(t, uint64(1000), ledger.got.MinAmount)
	assert.Equal(t, req.PaymentID, ledger.got.Memo)
	assert.Equal(t, req.Recipient, ledger.got.Recipient.String())
	assert.Equal(t, req.TokenMint, ledger.got.Mint.String())
	assert.Equal(t, key.PublicKey(), ledger.got.Payer)
}

func TestOnchainCheckerErrors(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	req := testRequirement(time.Minute)
	proof := signProof(t, key, req)

	checker := NewOnchainChecker(&fakeTransferVerifier{}, 6)
	assert.Error(t, checker.VerifyPayment(context.Background(), req, proof), "missing transaction")

	txSig, err := key.Sign([]byte("transfer"))
	require.NoError(t, err)
	proof.Transaction = txSig.String()

	mismatch := NewOnchainChecker(&fakeTransferVerifier{err: fmt.Errorf("%w: memo", client.ErrTransferMismatch)}, 6)
	err = mismatch.VerifyPayment(context.Background(), req, proof)
	require.Error(t, err)
	assert.NotEqual(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))

	down := NewOnchainChecker(&fakeTransferVerifier{err: errors.New("connection refused")}, 6)
	err = down.VerifyPayment(context.Background(), req, proof)
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
}
