package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// ErrDuplicateReceipt is returned when a receipt for the payment id already exists.
var ErrDuplicateReceipt = errors.New("receipt already recorded")

// ReceiptLedger is the append-only record of accepted payments.
type ReceiptLedger interface {
	Append(ctx context.Context, r *model.PaymentReceipt) error
	List(ctx context.Context, limit int) ([]model.PaymentReceipt, error)
}

// SQLiteReceiptLedger stores receipts in a SQLite table with no update or delete path.
type SQLiteReceiptLedger struct {
	db *sql.DB
}

// OpenSQLiteReceiptLedger opens (creating if needed) the ledger at path.
// Use ":memory:" for an ephemeral ledger.
func OpenSQLiteReceiptLedger(path string) (*SQLiteReceiptLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipts db: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	l := &SQLiteReceiptLedger{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteReceiptLedger) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_receipts (
			payment_id TEXT PRIMARY KEY,
			amount     TEXT NOT NULL,
			token_mint TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			tool       TEXT NOT NULL,
			signature  TEXT NOT NULL,
			payer      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_receipts_timestamp ON payment_receipts(timestamp)`,
	}
	for _, q := range queries {
		if _, err := l.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("failed to migrate receipts db: %w", err)
		}
	}
	return nil
}

// Append inserts r. Receipts are never updated.
func (l *SQLiteReceiptLedger) Append(ctx context.Context, r *model.PaymentReceipt) error {
	query := `INSERT INTO payment_receipts (payment_id, amount, token_mint, timestamp, tool, signature, payer)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query, r.PaymentID, r.Amount, r.TokenMint, r.Timestamp, r.Tool, r.Signature, r.Payer)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

// List returns the most recent receipts first.
func (l *SQLiteReceiptLedger) List(ctx context.Context, limit int) ([]model.PaymentReceipt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT payment_id, amount, token_mint, timestamp, tool, signature, payer
		FROM payment_receipts
		ORDER BY timestamp DESC
		LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	receipts := make([]model.PaymentReceipt, 0, limit)
	for rows.Next() {
		var r model.PaymentReceipt
		if err := rows.Scan(&r.PaymentID, &r.Amount, &r.TokenMint, &r.Timestamp, &r.Tool, &r.Signature, &r.Payer); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// Close closes the database.
func (l *SQLiteReceiptLedger) Close() error {
	return l.db.Close()
}

var _ ReceiptLedger = (*SQLiteReceiptLedger)(nil)
