package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/vault"
)

type fakeYield struct {
	apy       uint64
	positions map[solana.PublicKey]*model.Position
	err       error
}

func (f *fakeYield) ApyBps(context.Context) uint64 { return f.apy }

func (f *fakeYield) Position(_ context.Context, owner solana.PublicKey) (*model.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.positions[owner]; ok {
		return p, nil
	}
	return &model.Position{Owner: owner.String()}, nil
}

type fakeQuoter struct {
	quote *vault.SwapQuote
	err   error
	got   model.SwapDirection
}

func (f *fakeQuoter) Quote(_ context.Context, direction model.SwapDirection, _ string) (*vault.SwapQuote, error) {
	f.got = direction
	return f.quote, f.err
}

type fakeExplainer struct {
	tx  *model.TransactionExplanation
	err error
}

func (f *fakeExplainer) ExplainTransaction(context.Context, solana.Signature) (*model.TransactionExplanation, error) {
	return f.tx, f.err
}

type testDeps struct {
	yield     *fakeYield
	quoter    *fakeQuoter
	explainer *fakeExplainer
	now       time.Time
}

func newTestRegistry(t *testing.T) (*Registry, *testDeps) {
	t.Helper()
	d := &testDeps{
		yield:     &fakeYield{apy: 500, positions: map[solana.PublicKey]*model.Position{}},
		quoter:    &fakeQuoter{},
		explainer: &fakeExplainer{},
		now:       time.Unix(1_700_000_000, 0),
	}
	r := NewDefaultRegistry(Deps{
		Yield:        d.yield,
		Quoter:       d.quoter,
		Explainer:    d.explainer,
		VaultProgram: "Vox4Hta7Tank473DCBwbEdYUBqFBWxfntK3WwkdGf3L",
		Now:          func() time.Time { return d.now },
	})
	return r, d
}

func dispatch[T any](t *testing.T, r *Registry, name, body string) *T {
	t.Helper()
	resp, err := r.Dispatch(context.Background(), name, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, name, resp.Tool)
	out, ok := resp.Result.(*T)
	require.True(t, ok, "unexpected result type %T", resp.Result)
	return out
}

func TestDispatchUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Dispatch(context.Background(), "nope.tool", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
	assert.Contains(t, apperr.PublicMessage(err), "Unknown tool: nope.tool")
}

func TestDispatchValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	cases := []struct {
		name string
		tool string
		body string
	}{
		{"not json", SwapAgentTool, `{"direction":`},
		{"missing fields", SwapAgentTool, `{}`},
		{"bad direction", SwapAgentTool, `{"direction":"BTC_TO_SOL","amount":"1"}`},
		{"bad amount", SwapAgentTool, `{"direction":"SOL_TO_USDC","amount":"-1"}`},
		{"amount as number", YieldAgentTool, `{"amount":1}`},
		{"missing signature", TxExplainTool, `{}`},
		{"not an object", YieldAgentTool, `[]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Dispatch(context.Background(), tc.tool, []byte(tc.body))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	handler := func(context.Context, json.RawMessage) (any, error) { return "ok", nil }

	require.NoError(t, r.Register(Tool{Name: "b.tool", Handler: handler}))
	require.NoError(t, r.Register(Tool{Name: "a.tool", Handler: handler, Schema: `{"type":"object"}`}))
	assert.Error(t, r.Register(Tool{Name: "a.tool", Handler: handler}))
	assert.Error(t, r.Register(Tool{Name: "c.tool", Handler: handler, Schema: `{"type": 5}`}))
	assert.Error(t, r.Register(Tool{Name: "d.tool"}))

	assert.True(t, r.Has("a.tool"))
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a.tool", list[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(list[0].Schema))

	resp, err := r.Dispatch(context.Background(), "b.tool", []byte("  "))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Result)
}

func TestYieldAgentDefaults(t *testing.T) {
	r, _ := newTestRegistry(t)
	res := dispatch[YieldResult](t, r, YieldAgentTool, `{}`)

	assert.Equal(t, "deposit", res.Recommendation)
	assert.Equal(t, "0.1", res.SuggestedAmount)
	assert.Equal(t, "5.00%", res.CurrentApy)
	assert.Equal(t, "0.000410958 SOL", res.ProjectedYield30d)
	assert.Equal(t, "low", res.RiskLevel)
	assert.Nil(t, res.Position)
}

func TestYieldAgentWithPosition(t *testing.T) {
	r, d := newTestRegistry(t)
	owner := solana.NewWallet().PublicKey()
	d.yield.apy = 1000
	d.yield.positions[owner] = &model.Position{
		Owner:     owner.String(),
		Amount:    2_000_000_000,
		StartTime: d.now.Add(-365 * 24 * time.Hour).Unix(),
	}

	res := dispatch[YieldResult](t, r, YieldAgentTool, `{"amount":"1","owner":"`+owner.String()+`"}`)
	assert.Equal(t, "hold", res.Recommendation)
	assert.Equal(t, "10.00%", res.CurrentApy)
	assert.Equal(t, "0.008219178 SOL", res.ProjectedYield30d)
	require.NotNil(t, res.Position)
	assert.Equal(t, "2", res.Position.Deposited)
	assert.Equal(t, "0.2", res.Position.PendingYield)

	d.yield.err = errors.New("rpc down")
	_, err := r.Dispatch(context.Background(), YieldAgentTool, []byte(`{"owner":"`+owner.String()+`"}`))
	assert.Equal(t, apperr.KindUpstreamUnavailable, apperr.KindOf(err))
}

func TestFormatApy(t *testing.T) {
	assert.Equal(t, "5.00%", FormatApy(500))
	assert.Equal(t, "0.05%", FormatApy(5))
	assert.Equal(t, "12.34%", FormatApy(1234))
}

func TestSwapAgent(t *testing.T) {
	r, d := newTestRegistry(t)
	d.quoter.quote = &vault.SwapQuote{
		Direction:    model.SwapSOLToUSDC,
		InputAmount:  "0.1 SOL",
		OutputAmount: "14.25 USDC",
		OutputUnits:  14_250_000,
		Price:        decimal.RequireFromString("142.5"),
		PriceSource:  vault.SourceFeed,
	}

	res := dispatch[SwapResult](t, r, SwapAgentTool, `{"direction":"SOL_TO_USDC","amount":"0.1"}`)
	assert.Equal(t, model.SwapSOLToUSDC, d.quoter.got)
	assert.Equal(t, "14.25 USDC", res.ExpectedOutput)
	assert.Equal(t, "14.17875 USDC", res.MinimumOutput)
	assert.Equal(t, "$142.5", res.Price)
	assert.Equal(t, "0.5%", res.Slippage)
	assert.Equal(t, vault.SourceFeed, res.PriceSource)

	d.quoter.quote.PriceSource = vault.SourceFallback
	res = dispatch[SwapResult](t, r, SwapAgentTool, `{"direction":"SOL_TO_USDC","amount":"0.1"}`)
	assert.Contains(t, res.Analysis, "fallback")

	d.quoter.err = apperr.Validation("amount too small")
	_, err := r.Dispatch(context.Background(), SwapAgentTool, []byte(`{"direction":"USDC_TO_SOL","amount":"0"}`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTxExplain(t *testing.T) {
	r, d := newTestRegistry(t)
	sig := solana.Signature{7}
	unknownProgram := solana.NewWallet().PublicKey().String()
	blockTime := time.Unix(1_700_000_000, 0).UTC()
	d.explainer.tx = &model.TransactionExplanation{
		Signature: sig.String(),
		Status:    "success",
		Slot:      42,
		BlockTime: &blockTime,
		FeeSOL:    "0.000005000",
		BalanceChanges: []model.BalanceChange{
			{Owner: "a", Token: "SOL", Change: "-0.1", Direction: model.DirectionOut},
			{Owner: "b", Token: "SOL", Change: "0.1", Direction: model.DirectionIn},
		},
		ProgramsInvolved: []string{solana.SystemProgramID.String(), client.MemoProgramID.String()},
		Memos:            []string{"hello"},
	}

	body := `{"signature":"` + sig.String() + `"}`
	res := dispatch[TxExplainResult](t, r, TxExplainTool, body)
	assert.Equal(t, []string{"System Program", "Memo Program"}, res.ProgramsInvolved)
	assert.Equal(t, "low", res.RiskAssessment)
	assert.Equal(t, "0.000005000 SOL", res.GasUsed)
	assert.Equal(t, "2023-11-14T22:13:20Z", res.BlockTime)
	require.Len(t, res.TokenChanges, 2)
	assert.Equal(t, model.DirectionOut, res.TokenChanges[0].Direction)
	assert.Equal(t, "success transaction moving SOL via System Program, Memo Program", res.Summary)

	d.explainer.tx.ProgramsInvolved = append(d.explainer.tx.ProgramsInvolved, unknownProgram)
	res = dispatch[TxExplainResult](t, r, TxExplainTool, body)
	assert.Equal(t, "medium", res.RiskAssessment)
	assert.Contains(t, res.ProgramsInvolved, unknownProgram)

	d.explainer.err = client.ErrTransactionNotFound
	_, err := r.Dispatch(context.Background(), TxExplainTool, []byte(body))
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))

	d.explainer.err = errors.New("connection refused")
	_, err = r.Dispatch(context.Background(), TxExplainTool, []byte(body))
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
}
