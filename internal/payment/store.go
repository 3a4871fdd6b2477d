package payment

import (
	"context"
	"errors"
	"time"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

var (
	// ErrUnknownPayment means no requirement with that id is (still) tracked.
	ErrUnknownPayment = errors.New("unknown payment id")
	// ErrPaymentExpired means the requirement's expiresAt has elapsed.
	ErrPaymentExpired = errors.New("payment requirement expired")
	// ErrPaymentConsumed means a proof for this id was already accepted.
	ErrPaymentConsumed = errors.New("payment requirement already consumed")
	// ErrDuplicatePayment is returned by Issue when the id is already tracked.
	ErrDuplicatePayment = errors.New("payment id already issued")
)

// StateStore tracks issued requirements through ISSUED -> CONSUMED | EXPIRED.
//
// Consume is the linearisation point: for a given id at most one call ever
// returns nil, no matter how many run concurrently or on how many replicas.
type StateStore interface {
	// Issue records req as ISSUED. It must complete before req is handed to a client.
	Issue(ctx context.Context, req *model.PaymentRequirements) error
	// Get returns the requirement and its current status.
	Get(ctx context.Context, paymentID string) (*model.PaymentRequirements, model.PaymentStatus, error)
	// Consume atomically moves an ISSUED, unexpired requirement to CONSUMED.
	Consume(ctx context.Context, paymentID string, now time.Time) (*model.PaymentRequirements, error)
}

func expired(req *model.PaymentRequirements, now time.Time) bool {
	return now.UnixMilli() > req.ExpiresAt
}
