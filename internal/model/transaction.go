package model

import "time"

// TransferDirection is the direction of a balance change relative to its owner.
type TransferDirection string

const (
	DirectionIn  TransferDirection = "in"
	DirectionOut TransferDirection = "out"
)

// BalanceChange is a per-owner net movement of SOL or one SPL token within a transaction.
type BalanceChange struct {
	Owner     string            `json:"owner"`
	Token     string            `json:"token"` // "SOL" or the mint address
	Change    string            `json:"change"`
	Direction TransferDirection `json:"direction"`
}

// TransactionExplanation summarises a confirmed transaction.
type TransactionExplanation struct {
	Signature        string          `json:"signature"`
	Status           string          `json:"status"`
	Slot             uint64          `json:"slot"`
	BlockTime        *time.Time      `json:"blockTime,omitempty"`
	FeeSOL           string          `json:"feeSOL"`
	FeePayer         string          `json:"feePayer"`
	BalanceChanges   []BalanceChange `json:"tokenChanges"`
	ProgramsInvolved []string        `json:"programsInvolved"`
	Memos            []string        `json:"memos,omitempty"`
}
