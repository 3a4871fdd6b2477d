// Package vault settles swaps against the custodial vault wallet and mirrors the
// on-chain vault program's instruction and account layout.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// Anchor discriminators: sha256("global:<ix>")[:8] and sha256("account:<Name>")[:8].
var (
	depositDiscriminator    = [8]byte{242, 35, 198, 137, 82, 225, 242, 182}
	withdrawDiscriminator   = [8]byte{183, 18, 70, 156, 148, 109, 161, 34}
	vaultStateDiscriminator = [8]byte{228, 196, 82, 165, 98, 210, 235, 152}
	positionDiscriminator   = [8]byte{170, 188, 143, 228, 122, 64, 247, 208}
)

const (
	secondsPerYear = 31_536_000
	bpsDenominator = 10_000

	// DefaultApyBps is assumed when the vault state account cannot be read.
	DefaultApyBps = 500
)

var (
	seedVaultState = []byte("vault")
	seedVaultPDA   = []byte("vault_pda")
	seedPosition   = []byte("position")
)

// ErrDiscriminator means account data does not belong to the expected account type.
var ErrDiscriminator = errors.New("account discriminator mismatch")

// Program addresses one deployment of the vault program.
type Program struct {
	ID solana.PublicKey
}

// NewProgram parses the program id.
func NewProgram(programID string) (*Program, error) {
	id, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid vault program id: %w", err)
	}
	return &Program{ID: id}, nil
}

// VaultStateAddress is the PDA of the VaultState account.
func (p *Program) VaultStateAddress() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedVaultState}, p.ID)
	return addr, err
}

// VaultPDAAddress is the PDA holding deposited lamports.
func (p *Program) VaultPDAAddress() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedVaultPDA}, p.ID)
	return addr, err
}

// PositionAddress is the PDA of owner's Position account.
func (p *Program) PositionAddress(owner solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedPosition, owner.Bytes()}, p.ID)
	return addr, err
}

type amountArgs struct {
	Amount uint64
}

func encodeInstructionData(discriminator [8]byte, amount uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(discriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.Encode(amountArgs{Amount: amount}); err != nil {
		return nil, fmt.Errorf("failed to encode amount: %w", err)
	}
	return buf.Bytes(), nil
}

type addresses struct {
	state, pda, position solana.PublicKey
}

func (p *Program) addresses(owner solana.PublicKey) (addresses, error) {
	var a addresses
	var err error
	if a.state, err = p.VaultStateAddress(); err != nil {
		return a, fmt.Errorf("failed to derive vault state address: %w", err)
	}
	if a.pda, err = p.VaultPDAAddress(); err != nil {
		return a, fmt.Errorf("failed to derive vault pda: %w", err)
	}
	if a.position, err = p.PositionAddress(owner); err != nil {
		return a, fmt.Errorf("failed to derive position address: %w", err)
	}
	return a, nil
}

// DepositInstruction moves lamports from user into the vault and credits user's position.
func (p *Program) DepositInstruction(user solana.PublicKey, lamports uint64) (solana.Instruction, error) {
	a, err := p.addresses(user)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstructionData(depositDiscriminator, lamports)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(a.state).WRITE(),
		solana.Meta(a.pda).WRITE(),
		solana.Meta(a.position).WRITE(),
		solana.Meta(user).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

// WithdrawInstruction returns lamports plus accrued yield to owner.
func (p *Program) WithdrawInstruction(owner solana.PublicKey, lamports uint64) (solana.Instruction, error) {
	a, err := p.addresses(owner)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstructionData(withdrawDiscriminator, lamports)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(a.state).WRITE(),
		solana.Meta(a.pda).WRITE(),
		solana.Meta(a.position).WRITE(),
		solana.Meta(owner).SIGNER(),
		solana.Meta(owner).WRITE(), // user receiving the lamports
		solana.Meta(solana.SystemProgramID),
	}, data), nil
}

type vaultStateAccount struct {
	Admin          solana.PublicKey
	ApyBps         uint64
	TotalDeposited uint64
	Bump           uint8
}

type positionAccount struct {
	Owner        solana.PublicKey
	Amount       uint64
	StartTime    int64
	AccruedYield uint64
}

func decodeAccount(data []byte, discriminator [8]byte, v any) error {
	if len(data) < len(discriminator) || !bytes.Equal(data[:len(discriminator)], discriminator[:]) {
		return ErrDiscriminator
	}
	if err := bin.NewBorshDecoder(data[len(discriminator):]).Decode(v); err != nil {
		return fmt.Errorf("failed to decode account: %w", err)
	}
	return nil
}

// DecodeVaultState parses VaultState account data.
func DecodeVaultState(data []byte) (*model.VaultState, error) {
	var acc vaultStateAccount
	if err := decodeAccount(data, vaultStateDiscriminator, &acc); err != nil {
		return nil, err
	}
	return &model.VaultState{
		Admin:          acc.Admin.String(),
		ApyBps:         acc.ApyBps,
		TotalDeposited: acc.TotalDeposited,
		Bump:           acc.Bump,
	}, nil
}

// DecodePosition parses Position account data.
func DecodePosition(data []byte) (*model.Position, error) {
	var acc positionAccount
	if err := decodeAccount(data, positionDiscriminator, &acc); err != nil {
		return nil, err
	}
	return &model.Position{
		Owner:        acc.Owner.String(),
		Amount:       acc.Amount,
		StartTime:    acc.StartTime,
		AccruedYield: acc.AccruedYield,
	}, nil
}

// CalculateYield is amount*apyBps*elapsed / (10000*31536000), floored, with a
// 128-bit intermediate like the program. Non-positive elapsed yields zero.
func CalculateYield(amount, apyBps uint64, startTime, endTime int64) uint64 {
	elapsed := endTime - startTime
	if elapsed <= 0 {
		return 0
	}
	n := new(big.Int).SetUint64(amount)
	n.Mul(n, new(big.Int).SetUint64(apyBps))
	n.Mul(n, big.NewInt(elapsed))
	n.Quo(n, big.NewInt(bpsDenominator*secondsPerYear))
	if !n.IsUint64() {
		return ^uint64(0)
	}
	return n.Uint64()
}
