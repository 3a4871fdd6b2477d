package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// MemoProgramID is the SPL Memo program (v2).
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

var (
	// ErrUnconfirmed means the transaction was sent but no confirmation was observed in time.
	// It may still land.
	ErrUnconfirmed = errors.New("transaction not confirmed before timeout")
	// ErrTransactionFailed means the transaction was confirmed with an execution error.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
	// ErrTransactionNotFound means the RPC node has no record of the signature.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAccountNotFound means the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrTransferMismatch means a transaction does not pay what was expected.
	ErrTransferMismatch = errors.New("transaction does not match expected transfer")
)

// Signer signs transaction messages without exposing the secret key.
// solana.PrivateKey satisfies it.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

// TransferCheck describes an expected inbound transfer.
type TransferCheck struct {
	Recipient solana.PublicKey
	// Mint is the SPL token mint; the zero key means native SOL.
	Mint      solana.PublicKey
	MinAmount uint64
	// Memo, when set, must appear verbatim in a memo instruction.
	Memo string
	// Payer, when set, must have signed the transaction.
	Payer solana.PublicKey
}

// SolanaClient is a client for working with Solana RPC
type SolanaClient struct {
	rpcClient    *rpc.Client
	pollInterval time.Duration
}

// NewSolanaClient creates a client for rpcURL. pollInterval is the confirmation polling
// period; zero means one second.
func NewSolanaClient(rpcURL string, pollInterval time.Duration) *SolanaClient {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SolanaClient{
		rpcClient:    rpc.New(rpcURL),
		pollInterval: pollInterval,
	}
}

// SOLBalance gets SOL balance in lamports
func (c *SolanaClient) SOLBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	balance, err := c.rpcClient.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get SOL balance: %w", err)
	}
	return balance.Value, nil
}

// TokenBalance gets the owner's balance of mint in base units. A missing associated
// token account is reported as zero.
func (c *SolanaClient) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ataAddress, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	balance, err := c.rpcClient.GetTokenAccountBalance(ctx, ataAddress, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token account balance: %w", err)
	}

	if balance.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance amount: %w", err)
	}
	return amount, nil
}

// TokenAccountRentExempt gets the minimum balance in SOL required for rent exemption
// of a token account.
func (c *SolanaClient) TokenAccountRentExempt(ctx context.Context) (string, error) {
	// Token account size is 165 bytes
	const tokenAccountSize = 165

	rentExempt, err := c.rpcClient.GetMinimumBalanceForRentExemption(ctx, tokenAccountSize, rpc.CommitmentFinalized)
	if err != nil {
		return "", err
	}
	return common.LamportsToSOL(rentExempt), nil
}

// TokenTransferInstructions builds a TransferChecked of amount from the owner's ATA to the
// recipient's ATA, preceded by a create-ATA instruction (paid by from) when the
// recipient has none.
func (c *SolanaClient) TokenTransferInstructions(
	ctx context.Context,
	from, to, mint solana.PublicKey,
	amount uint64,
	decimals uint8,
) ([]solana.Instruction, error) {
	sourceTokenAccount, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find source token account address: %w", err)
	}
	destTokenAccount, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find destination token account: %w", err)
	}

	instructions := make([]solana.Instruction, 0, 2)

	_, err = c.rpcClient.GetAccountInfo(ctx, destTokenAccount)
	switch {
	case isAccountNotFoundError(err):
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			from, // payer
			to,   // owner
			mint,
		).Build())
	case err != nil:
		return nil, fmt.Errorf("failed to get destination account info: %w", err)
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		amount,
		decimals,
		sourceTokenAccount,
		mint,
		destTokenAccount,
		from,
		[]solana.PublicKey{},
	).Build())

	return instructions, nil
}

// SOLTransferInstruction builds a system transfer of lamports.
func SOLTransferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, from, to).Build()
}

// MemoInstruction builds a memo instruction signed by signer.
func MemoInstruction(memo string, signer solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		MemoProgramID,
		solana.AccountMetaSlice{solana.Meta(signer).SIGNER()},
		[]byte(memo),
	)
}

// Submit builds a transaction from instructions with signer as fee payer, signs it and
// sends it. It does not wait for confirmation.
func (c *SolanaClient) Submit(ctx context.Context, signer Signer, instructions []solana.Instruction) (solana.Signature, error) {
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(signer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := signTransaction(tx, signer); err != nil {
		return solana.Signature{}, err
	}

	sig, err := c.rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentFinalized,
		},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// signTransaction places the signer's signature at its account index.
func signTransaction(tx *solana.Transaction, signer Signer) error {
	if tx.Message.Header.NumRequiredSignatures != 1 {
		return fmt.Errorf("transaction requires %d signatures, only the fee payer can sign", tx.Message.Header.NumRequiredSignatures)
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	signature, err := signer.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(signer.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}
	if len(tx.Signatures) <= int(accountIndex) {
		signatures := make([]solana.Signature, accountIndex+1)
		copy(signatures, tx.Signatures)
		tx.Signatures = signatures
	}
	tx.Signatures[accountIndex] = signature
	return nil
}

// AwaitConfirmation polls the signature status until it reaches confirmed commitment or
// timeout elapses. After the deadline one last status check is made with a fresh
// context; if that also sees nothing, ErrUnconfirmed is returned.
func (c *SolanaClient) AwaitConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkConfirmed(waitCtx, sig)
		if done {
			return err
		}
		select {
		case <-waitCtx.Done():
			finalCtx, finalCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer finalCancel()
			if done, err := c.checkConfirmed(finalCtx, sig); done {
				return err
			}
			return fmt.Errorf("%w: %s", ErrUnconfirmed, sig)
		case <-ticker.C:
		}
	}
}

// checkConfirmed reports done=true once the status is final; err is then the
// execution outcome.
func (c *SolanaClient) checkConfirmed(ctx context.Context, sig solana.Signature) (bool, error) {
	statuses, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil || statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return false, nil
	}
	status := statuses.Value[0]
	if status.Err != nil {
		return true, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}

// AccountData returns the raw data of an account.
func (c *SolanaClient) AccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if isAccountNotFoundError(err) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if info == nil || info.Value == nil {
		return nil, ErrAccountNotFound
	}
	return info.Value.Data.GetBinary(), nil
}

func (c *SolanaClient) getTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, *solana.Transaction, error) {
	// maxVersion is hardcoded - new version support requires library update and rebuild anyway
	maxVersion := uint64(0)
	tx, err := c.rpcClient.GetTransaction(
		ctx,
		sig,
		&rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		},
	)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil, ErrTransactionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil || tx.Transaction == nil {
		return nil, nil, ErrTransactionNotFound
	}
	decoded, err := tx.Transaction.GetTransaction()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, decoded, nil
}

// VerifyTransfer checks that the confirmed transaction sig satisfies check.
func (c *SolanaClient) VerifyTransfer(ctx context.Context, sig solana.Signature, check TransferCheck) error {
	tx, decoded, err := c.getTransaction(ctx, sig)
	if err != nil {
		return err
	}
	if tx.Meta == nil {
		return fmt.Errorf("%w: missing transaction meta", ErrTransferMismatch)
	}
	if tx.Meta.Err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, tx.Meta.Err)
	}

	if !check.Payer.IsZero() && !signedBy(decoded, check.Payer) {
		return fmt.Errorf("%w: not signed by %s", ErrTransferMismatch, check.Payer)
	}
	if check.Memo != "" && !containsMemo(decoded, check.Memo) {
		return fmt.Errorf("%w: memo %q not found", ErrTransferMismatch, check.Memo)
	}

	var received int64
	if check.Mint.IsZero() {
		received = solDeltas(tx, decoded)[check.Recipient.String()]
	} else {
		received = tokenDeltas(tx, check.Mint)[check.Recipient.String()]
	}
	if received < 0 || uint64(received) < check.MinAmount {
		return fmt.Errorf("%w: recipient received %d, expected at least %d", ErrTransferMismatch, received, check.MinAmount)
	}
	return nil
}

// ExplainTransaction summarises a confirmed transaction: status, fee, per-owner SOL and
// token movements, invoked programs and memos.
func (c *SolanaClient) ExplainTransaction(ctx context.Context, sig solana.Signature) (*model.TransactionExplanation, error) {
	tx, decoded, err := c.getTransaction(ctx, sig)
	if err != nil {
		return nil, err
	}

	out := &model.TransactionExplanation{
		Signature: sig.String(),
		Status:    "success",
		Slot:      tx.Slot,
		FeeSOL:    "0",
	}
	if tx.BlockTime != nil {
		t := time.Unix(int64(*tx.BlockTime), 0).UTC()
		out.BlockTime = &t
	}
	if len(decoded.Message.AccountKeys) > 0 {
		out.FeePayer = decoded.Message.AccountKeys[0].String()
	}
	out.ProgramsInvolved = programsInvolved(decoded)
	out.Memos = memos(decoded)

	if tx.Meta == nil {
		out.Status = "unknown"
		return out, nil
	}
	if tx.Meta.Err != nil {
		out.Status = "failed"
	}
	out.FeeSOL = common.LamportsToSOL(tx.Meta.Fee)

	changes := make([]model.BalanceChange, 0)

	// SOL: the fee payer's delta excludes the fee so only transfers remain
	sol := solDeltas(tx, decoded)
	if out.FeePayer != "" {
		sol[out.FeePayer] += int64(tx.Meta.Fee)
	}
	for owner, delta := range sol {
		if delta != 0 {
			changes = append(changes, balanceChange(owner, "SOL", delta, common.SOLDecimals))
		}
	}

	decimals := make(map[string]uint8)
	for _, balances := range [][]rpc.TokenBalance{tx.Meta.PreTokenBalances, tx.Meta.PostTokenBalances} {
		for _, b := range balances {
			if b.UiTokenAmount != nil {
				decimals[b.Mint.String()] = b.UiTokenAmount.Decimals
			}
		}
	}
	for mint, dec := range decimals {
		for owner, delta := range tokenDeltas(tx, solana.MustPublicKeyFromBase58(mint)) {
			if delta != 0 {
				changes = append(changes, balanceChange(owner, mint, delta, int(dec)))
			}
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Token != changes[j].Token {
			return changes[i].Token < changes[j].Token
		}
		return changes[i].Owner < changes[j].Owner
	})
	out.BalanceChanges = changes
	return out, nil
}

func balanceChange(owner, tokenName string, delta int64, decimals int) model.BalanceChange {
	direction := model.DirectionIn
	abs := uint64(delta)
	if delta < 0 {
		direction = model.DirectionOut
		abs = uint64(-delta)
	}
	amount := common.TrimUnits(abs, decimals)
	if direction == model.DirectionOut {
		amount = "-" + amount
	}
	return model.BalanceChange{Owner: owner, Token: tokenName, Change: amount, Direction: direction}
}

// solDeltas returns post-pre lamports per static account key.
func solDeltas(tx *rpc.GetTransactionResult, decoded *solana.Transaction) map[string]int64 {
	deltas := make(map[string]int64)
	if tx.Meta == nil {
		return deltas
	}
	for i, key := range decoded.Message.AccountKeys {
		if i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			break
		}
		pre, post := tx.Meta.PreBalances[i], tx.Meta.PostBalances[i]
		if post >= pre {
			deltas[key.String()] += int64(post - pre)
		} else {
			deltas[key.String()] -= int64(pre - post)
		}
	}
	return deltas
}

// tokenDeltas returns post-pre base units of mint per token account owner.
func tokenDeltas(tx *rpc.GetTransactionResult, mint solana.PublicKey) map[string]int64 {
	deltas := make(map[string]int64)
	if tx.Meta == nil {
		return deltas
	}
	for _, pre := range tx.Meta.PreTokenBalances {
		if pre.Mint.Equals(mint) && pre.Owner != nil && pre.UiTokenAmount != nil {
			amt, _ := strconv.ParseUint(pre.UiTokenAmount.Amount, 10, 64)
			deltas[pre.Owner.String()] -= int64(amt)
		}
	}
	for _, post := range tx.Meta.PostTokenBalances {
		if post.Mint.Equals(mint) && post.Owner != nil && post.UiTokenAmount != nil {
			amt, _ := strconv.ParseUint(post.UiTokenAmount.Amount, 10, 64)
			deltas[post.Owner.String()] += int64(amt)
		}
	}
	return deltas
}

func signedBy(tx *solana.Transaction, key solana.PublicKey) bool {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i, k := range tx.Message.AccountKeys {
		if i >= n {
			break
		}
		if k.Equals(key) {
			return true
		}
	}
	return false
}

func programsInvolved(tx *solana.Transaction) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(tx.Message.Instructions))
	for _, ix := range tx.Message.Instructions {
		idx := int(ix.ProgramIDIndex)
		if idx >= len(tx.Message.AccountKeys) {
			continue
		}
		id := tx.Message.AccountKeys[idx].String()
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func memos(tx *solana.Transaction) []string {
	var out []string
	for _, ix := range tx.Message.Instructions {
		idx := int(ix.ProgramIDIndex)
		if idx < len(tx.Message.AccountKeys) && tx.Message.AccountKeys[idx].Equals(MemoProgramID) {
			out = append(out, string(ix.Data))
		}
	}
	return out
}

func containsMemo(tx *solana.Transaction, memo string) bool {
	for _, m := range memos(tx) {
		if m == memo {
			return true
		}
	}
	return false
}

// isAccountNotFoundError checks if error indicates that the account doesn't exist
func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}
