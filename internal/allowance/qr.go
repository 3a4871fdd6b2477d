package allowance

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/skip2/go-qrcode"
)

// FundingQR returns a 256px PNG QR code of the wallet's funding address, base64 encoded.
func FundingQR(publicKey string) (string, error) {
	png, err := FundingQRPNG(publicKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// FundingQRPNG is FundingQR without the base64 step.
func FundingQRPNG(publicKey string) ([]byte, error) {
	if _, err := solana.PublicKeyFromBase58(publicKey); err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	qr, err := qrcode.New(publicKey, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	return png, nil
}
