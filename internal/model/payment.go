package model

// Payment protocol headers. Values are plain JSON.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentRequired = "X-Payment-Required"
	HeaderPaymentResponse = "X-Payment-Response"
)

// Network is the Solana cluster a requirement must be paid on.
type Network string

const (
	NetworkDevnet  Network = "devnet"
	NetworkMainnet Network = "mainnet"
)

// PaymentStatus is the lifecycle state of an issued requirement.
type PaymentStatus string

const (
	PaymentStatusIssued   PaymentStatus = "ISSUED"
	PaymentStatusConsumed PaymentStatus = "CONSUMED"
	PaymentStatusExpired  PaymentStatus = "EXPIRED"
)

// PaymentRequirements is the server-issued challenge for one priced call.
type PaymentRequirements struct {
	PaymentID string  `json:"paymentId"`
	Amount    string  `json:"amount"`
	TokenMint string  `json:"tokenMint"`
	Recipient string  `json:"recipient"`
	Network   Network `json:"network"`
	ExpiresAt int64   `json:"expiresAt"` // epoch ms
	Tool      string  `json:"tool"`
}

// PaymentProof is the X-Payment header content redeeming one requirement.
type PaymentProof struct {
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"` // base58 ed25519 signature
	Payer     string `json:"payer"`     // base58 public key
	Timestamp int64  `json:"timestamp"` // epoch ms, part of the signed payload
	// Transaction is the on-chain transfer paying this requirement (on-chain policy only).
	Transaction string `json:"transaction,omitempty"`
}

// PaymentReceipt is the append-only record of an accepted proof.
type PaymentReceipt struct {
	PaymentID string `json:"paymentId"`
	Amount    string `json:"amount"`
	TokenMint string `json:"tokenMint"`
	Timestamp int64  `json:"timestamp"` // epoch ms
	Tool      string `json:"tool"`
	Signature string `json:"signature"`
	Payer     string `json:"payer"`
}

// PaymentResponse is the X-Payment-Response header content.
type PaymentResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// ReceiptsResponse represents response for GET /receipts
type ReceiptsResponse struct {
	Receipts []PaymentReceipt `json:"receipts"`
}
