package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// AccountReader fetches raw account data.
type AccountReader interface {
	AccountData(ctx context.Context, address solana.PublicKey) ([]byte, error)
}

// Reader mirrors vault program accounts read-only.
type Reader struct {
	program  *Program
	accounts AccountReader
}

// NewReader creates a reader.
func NewReader(program *Program, accounts AccountReader) *Reader {
	return &Reader{program: program, accounts: accounts}
}

// State reads the VaultState account.
func (r *Reader) State(ctx context.Context) (*model.VaultState, error) {
	addr, err := r.program.VaultStateAddress()
	if err != nil {
		return nil, err
	}
	data, err := r.accounts.AccountData(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault state: %w", err)
	}
	return DecodeVaultState(data)
}

// Position reads owner's position. An owner that never deposited has an empty position.
func (r *Reader) Position(ctx context.Context, owner solana.PublicKey) (*model.Position, error) {
	addr, err := r.program.PositionAddress(owner)
	if err != nil {
		return nil, err
	}
	data, err := r.accounts.AccountData(ctx, addr)
	if err != nil {
		if errors.Is(err, client.ErrAccountNotFound) {
			return &model.Position{Owner: owner.String()}, nil
		}
		return nil, fmt.Errorf("failed to read position: %w", err)
	}
	return DecodePosition(data)
}

// ApyBps returns the vault APY, or DefaultApyBps when the state cannot be read.
func (r *Reader) ApyBps(ctx context.Context) uint64 {
	state, err := r.State(ctx)
	if err != nil {
		return DefaultApyBps
	}
	return state.ApyBps
}

// PendingYield is the yield a withdrawal at now would pay: accrued plus yield since start.
func PendingYield(pos *model.Position, apyBps uint64, now time.Time) uint64 {
	if pos.Amount == 0 {
		return pos.AccruedYield
	}
	return pos.AccruedYield + CalculateYield(pos.Amount, apyBps, pos.StartTime, now.Unix())
}
