package payment

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

func newTestLedger(t *testing.T) *SQLiteReceiptLedger {
	t.Helper()
	l, err := OpenSQLiteReceiptLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestReceiptLedgerAppendList(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Append(ctx, &model.PaymentReceipt{
			PaymentID: id,
			Amount:    "0.001",
			TokenMint: "mint",
			Timestamp: int64(1000 + i),
			Tool:      "tx_explain.deep",
			Signature: "sig",
			Payer:     "payer",
		}))
	}

	got, err := l.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].PaymentID)
	assert.Equal(t, "b", got[1].PaymentID)
	assert.Equal(t, "tx_explain.deep", got[0].Tool)
}

func TestReceiptLedgerRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	r := &model.PaymentReceipt{PaymentID: "a", Amount: "1", TokenMint: "m", Timestamp: 1, Tool: "t", Signature: "s", Payer: "p"}

	require.NoError(t, l.Append(ctx, r))
	assert.ErrorIs(t, l.Append(ctx, r), ErrDuplicateReceipt)
}

func TestReceiptLedgerPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "receipts.db")

	l, err := OpenSQLiteReceiptLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(ctx, &model.PaymentReceipt{PaymentID: "a", Amount: "1", TokenMint: "m", Timestamp: 1, Tool: "t", Signature: "s", Payer: "p"}))
	require.NoError(t, l.Close())

	l, err = OpenSQLiteReceiptLedger(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	got, err := l.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].PaymentID)
}
