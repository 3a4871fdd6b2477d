package model

// KDFParams records the Argon2id parameters a secret was sealed with.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memoryKiB"`
	Threads   uint8  `json:"threads"`
}

// AllowanceWalletData is the persisted, PIN-sealed allowance keypair.
// Byte fields are base64 (std encoding).
type AllowanceWalletData struct {
	PublicKey       string    `json:"publicKey"`
	EncryptedSecret string    `json:"encryptedSecret"`
	IV              string    `json:"iv"`
	Salt            string    `json:"salt"`
	KDF             KDFParams `json:"kdf"`
	CreatedAt       string    `json:"createdAt,omitempty"`
}
