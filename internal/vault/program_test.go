package vault

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

func testProgram(t *testing.T) *Program {
	t.Helper()
	p, err := NewProgram(config.VaultProgramID)
	require.NoError(t, err)
	return p
}

func encodeAccount(t *testing.T, discriminator [8]byte, v any) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	require.NoError(t, bin.NewBorshEncoder(buf).Encode(v))
	return buf.Bytes()
}

func encodePosition(t *testing.T, owner solana.PublicKey, amount uint64, start int64, accrued uint64) []byte {
	return encodeAccount(t, positionDiscriminator, positionAccount{
		Owner:        owner,
		Amount:       amount,
		StartTime:    start,
		AccruedYield: accrued,
	})
}

func TestPDAsAreDeterministic(t *testing.T) {
	p := testProgram(t)
	owner := solana.NewWallet().PublicKey()

	a, err := p.PositionAddress(owner)
	require.NoError(t, err)
	b, err := p.PositionAddress(owner)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := p.PositionAddress(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	state, err := p.VaultStateAddress()
	require.NoError(t, err)
	pda, err := p.VaultPDAAddress()
	require.NoError(t, err)
	assert.NotEqual(t, state, pda)
}

func TestDepositInstructionLayout(t *testing.T) {
	p := testProgram(t)
	user := solana.NewWallet().PublicKey()

	ix, err := p.DepositInstruction(user, 250_000_000)
	require.NoError(t, err)
	assert.Equal(t, p.ID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	assert.Equal(t, depositDiscriminator[:], data[:8])
	assert.Equal(t, uint64(250_000_000), binary.LittleEndian.Uint64(data[8:]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 5)
	state, _ := p.VaultStateAddress()
	position, _ := p.PositionAddress(user)
	assert.Equal(t, state, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsWritable)
	assert.Equal(t, position, accounts[2].PublicKey)
	assert.Equal(t, user, accounts[3].PublicKey)
	assert.True(t, accounts[3].IsSigner)
	assert.True(t, accounts[3].IsWritable)
	assert.Equal(t, solana.SystemProgramID, accounts[4].PublicKey)
}

func TestWithdrawInstructionLayout(t *testing.T) {
	p := testProgram(t)
	owner := solana.NewWallet().PublicKey()

	ix, err := p.WithdrawInstruction(owner, 1)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, withdrawDiscriminator[:], data[:8])
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[8:]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 6)
	assert.True(t, accounts[3].IsSigner)
	assert.False(t, accounts[3].IsWritable)
	assert.True(t, accounts[4].IsWritable)
	assert.Equal(t, owner, accounts[4].PublicKey)
}

func TestDecodeAccounts(t *testing.T) {
	admin := solana.NewWallet().PublicKey()
	data := encodeAccount(t, vaultStateDiscriminator, vaultStateAccount{
		Admin:          admin,
		ApyBps:         750,
		TotalDeposited: 9_000_000_000,
		Bump:           254,
	})

	state, err := DecodeVaultState(data)
	require.NoError(t, err)
	assert.Equal(t, &model.VaultState{Admin: admin.String(), ApyBps: 750, TotalDeposited: 9_000_000_000, Bump: 254}, state)

	_, err = DecodePosition(data)
	assert.ErrorIs(t, err, ErrDiscriminator)

	owner := solana.NewWallet().PublicKey()
	pos, err := DecodePosition(encodePosition(t, owner, 5, -3, 7))
	require.NoError(t, err)
	assert.Equal(t, &model.Position{Owner: owner.String(), Amount: 5, StartTime: -3, AccruedYield: 7}, pos)

	_, err = DecodeVaultState(positionDiscriminator[:4])
	assert.ErrorIs(t, err, ErrDiscriminator)
}

func TestCalculateYield(t *testing.T) {
	// 1 SOL at 5% for a full year
	assert.Equal(t, uint64(50_000_000), CalculateYield(1_000_000_000, 500, 0, secondsPerYear))
	// 0.1 SOL at 5% for 30 days
	assert.Equal(t, uint64(410_958), CalculateYield(100_000_000, 500, 0, 30*24*3600))
	assert.Equal(t, uint64(0), CalculateYield(1_000_000_000, 500, 100, 100))
	assert.Equal(t, uint64(0), CalculateYield(1_000_000_000, 500, 100, 50))
	// intermediate exceeds 64 bits
	assert.Equal(t, uint64(18_000_000_000_000_000_000), CalculateYield(18_000_000_000_000_000_000, 10_000, 0, secondsPerYear))
}

func TestReader(t *testing.T) {
	p := testProgram(t)
	ledger := newFakeLedger()
	r := NewReader(p, ledger)
	ctx := context.Background()

	assert.Equal(t, uint64(DefaultApyBps), r.ApyBps(ctx))

	stateAddr, _ := p.VaultStateAddress()
	ledger.accounts[stateAddr] = encodeAccount(t, vaultStateDiscriminator, vaultStateAccount{ApyBps: 800})
	assert.Equal(t, uint64(800), r.ApyBps(ctx))

	owner := solana.NewWallet().PublicKey()
	pos, err := r.Position(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos.Amount)

	posAddr, _ := p.PositionAddress(owner)
	start := time.Unix(1_700_000_000, 0)
	ledger.accounts[posAddr] = encodePosition(t, owner, 1_000_000_000, start.Unix(), 10)
	pos, err = r.Position(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(10+50_000_000), PendingYield(pos, 500, start.Add(secondsPerYear*time.Second)))
}
