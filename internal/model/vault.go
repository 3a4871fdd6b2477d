package model

// VaultState mirrors the on-chain vault state account.
type VaultState struct {
	Admin          string `json:"admin"`
	ApyBps         uint64 `json:"apyBps"`
	TotalDeposited uint64 `json:"totalDeposited"` // lamports
	Bump           uint8  `json:"bump"`
}

// Position mirrors one owner's on-chain deposit record.
type Position struct {
	Owner        string `json:"owner"`
	Amount       uint64 `json:"amount"`    // lamports
	StartTime    int64  `json:"startTime"` // unix seconds
	AccruedYield uint64 `json:"accruedYield"`
}
