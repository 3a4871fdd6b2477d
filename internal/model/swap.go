package model

// SwapDirection is the public direction name accepted by POST /vault-swap.
type SwapDirection string

const (
	SwapSOLToUSDC SwapDirection = "SOL_TO_USDC"
	SwapUSDCToSOL SwapDirection = "USDC_TO_SOL"
)

// VaultSwapRequest represents request for POST /vault-swap
type VaultSwapRequest struct {
	Direction  SwapDirection `json:"direction"`
	Amount     string        `json:"amount"`
	UserWallet string        `json:"userWallet"`
	// InputTx is the user's inbound leg, required when the vault verifies deposits.
	InputTx string `json:"inputTx,omitempty"`
}

// VaultSwapResponse represents response for POST /vault-swap
type VaultSwapResponse struct {
	Success      bool          `json:"success"`
	Direction    SwapDirection `json:"direction"`
	InputAmount  string        `json:"inputAmount"`
	OutputAmount string        `json:"outputAmount"`
	Price        string        `json:"price"`
	TxSignature  string        `json:"txSignature"`
	ExplorerURL  string        `json:"explorerUrl"`
}

// VaultBalances holds custodial balances as decimal strings.
type VaultBalances struct {
	SOL  string `json:"SOL"`
	USDC string `json:"USDC"`
}

// VaultStatusResponse represents response for GET /vault-swap
type VaultStatusResponse struct {
	VaultAddress string        `json:"vaultAddress"`
	Balances     VaultBalances `json:"balances"`
	CurrentPrice string        `json:"currentPrice"`
	PriceSource  string        `json:"priceSource"`
	Network      Network       `json:"network"`
}
