package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexZinkM/allowance-gate/internal/agent"
	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/logging"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/payment"
	"github.com/AlexZinkM/allowance-gate/internal/session"
	"github.com/AlexZinkM/allowance-gate/internal/tools"
)

type stubYield struct{}

func (stubYield) ApyBps(context.Context) uint64 { return 500 }

func (stubYield) Position(_ context.Context, owner solana.PublicKey) (*model.Position, error) {
	return &model.Position{Owner: owner.String()}, nil
}

type stubSwapper struct {
	resp *model.VaultSwapResponse
	err  error
	got  model.VaultSwapRequest
}

func (s *stubSwapper) Swap(_ context.Context, req model.VaultSwapRequest) (*model.VaultSwapResponse, error) {
	s.got = req
	return s.resp, s.err
}

func (s *stubSwapper) Status(context.Context) (*model.VaultStatusResponse, error) {
	return nil, apperr.ConfigurationMissing("VAULT_PRIVATE_KEY not configured")
}

type testServer struct {
	mux    *http.ServeMux
	ledger *payment.SQLiteReceiptLedger
	store  payment.StateStore
	swap   *stubSwapper
}

func newTestServer(t *testing.T, pricing config.Pricing, limiter *IPRateLimiter) *testServer {
	t.Helper()
	logger := logging.Discard()

	store := payment.NewMemoryStateStore(time.Minute)
	ledger, err := payment.OpenSQLiteReceiptLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	issuer := payment.NewIssuer(payment.IssuerConfig{
		Pricing:   pricing,
		TTL:       time.Minute,
		TokenMint: config.DevnetUSDCMint,
		Recipient: solana.NewWallet().PublicKey().String(),
		Network:   model.NetworkDevnet,
	}, store)
	verifier := payment.NewVerifier(store, ledger, payment.WithLogger(logger))

	registry := tools.NewDefaultRegistry(tools.Deps{
		Yield:        stubYield{},
		VaultProgram: config.VaultProgramID,
	})
	registry.MustRegister(tools.Tool{
		Name: "echo",
		Handler: func(_ context.Context, body json.RawMessage) (any, error) {
			return body, nil
		},
	})

	sessions := session.NewStore(0)
	swap := &stubSwapper{}

	gate := NewGate(issuer, verifier, registry, limiter, logger)
	th := NewToolsHandler(registry, logger)
	rh := NewReceiptsHandler(ledger, verifier.Policy(), model.NetworkDevnet, pricing, logger)
	ah := NewAgentHandler(agent.New(agent.RuleAssistant{}, config.DevnetUSDCMint, agent.WithSessions(sessions)), sessions, logger)
	vh := NewVaultHandler(swap, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rh.Health)
	mux.HandleFunc("GET /receipts", rh.List)
	mux.HandleFunc("GET /tools", th.List)
	mux.Handle("POST /tools/{tool}", gate.Middleware(http.HandlerFunc(th.Call)))
	mux.HandleFunc("POST /vault-swap", vh.Swap)
	mux.HandleFunc("GET /vault-swap", vh.Status)
	mux.HandleFunc("POST /agent", ah.Chat)
	mux.HandleFunc("GET /sessions/{id}/messages", ah.Messages)
	mux.HandleFunc("POST /sessions/{id}/messages", ah.AppendMessage)
	mux.HandleFunc("POST /sessions/{id}/clear", ah.Clear)

	return &testServer{mux: mux, ledger: ledger, store: store, swap: swap}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.7:4242"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func signProof(t *testing.T, key solana.PrivateKey, payer solana.PublicKey, req *model.PaymentRequirements) http.Header {
	t.Helper()
	ts := time.Now().UnixMilli()
	payload, err := payment.CanonicalPayload(req.PaymentID, req.Amount, req.TokenMint, ts)
	require.NoError(t, err)
	sig, err := key.Sign(payload)
	require.NoError(t, err)
	proof, err := json.Marshal(model.PaymentProof{
		PaymentID: req.PaymentID,
		Signature: sig.String(),
		Payer:     payer.String(),
		Timestamp: ts,
	})
	require.NoError(t, err)
	return http.Header{model.HeaderPayment: []string{string(proof)}}
}

func challenge(t *testing.T, s *testServer, tool string) *model.PaymentRequirements {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/tools/"+tool, `{}`, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	var fromHeader model.PaymentRequirements
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get(model.HeaderPaymentRequired)), &fromHeader))
	body := decode[model.PaymentRequiredResponse](t, rec)
	require.NotNil(t, body.Requirements)
	assert.Equal(t, fromHeader, *body.Requirements)
	return body.Requirements
}

func TestGateChallengesWithoutProof(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)

	rec := s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode[model.PaymentRequiredResponse](t, rec)
	assert.Equal(t, "payment required", body.Error)
	assert.Equal(t, "0.001", body.Requirements.Amount)
	assert.Equal(t, "yield_agent.run", body.Requirements.Tool)
	assert.Equal(t, model.NetworkDevnet, body.Requirements.Network)
	assert.Greater(t, body.Requirements.ExpiresAt, time.Now().UnixMilli())
}

func TestGateAcceptsSignedProof(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	key := solana.NewWallet().PrivateKey

	req := challenge(t, s, "yield_agent.run")
	rec := s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, signProof(t, key, key.PublicKey(), req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var settled model.PaymentResponse
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get(model.HeaderPaymentResponse)), &settled))
	assert.Equal(t, req.PaymentID, settled.PaymentID)
	assert.Equal(t, "settled", settled.Status)

	body := decode[struct {
		Tool   string         `json:"tool"`
		Result map[string]any `json:"result"`
	}](t, rec)
	assert.Equal(t, "yield_agent.run", body.Tool)
	assert.Contains(t, body.Result, "recommendation")

	rec = s.do(t, http.MethodGet, "/receipts?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	receipts := decode[model.ReceiptsResponse](t, rec)
	require.Len(t, receipts.Receipts, 1)
	assert.Equal(t, req.PaymentID, receipts.Receipts[0].PaymentID)
	assert.Equal(t, key.PublicKey().String(), receipts.Receipts[0].Payer)
}

func TestGateRejectsReplay(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	key := solana.NewWallet().PrivateKey

	req := challenge(t, s, "yield_agent.run")
	proof := signProof(t, key, key.PublicKey(), req)
	rec := s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, proof)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, proof)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode[model.PaymentRequiredResponse](t, rec)
	require.NotNil(t, body.Requirements)
	assert.NotEqual(t, req.PaymentID, body.Requirements.PaymentID)
	assert.Empty(t, rec.Header().Get(model.HeaderPaymentResponse))
}

func TestGateRejectsBadSignature(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	claimed := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PrivateKey

	req := challenge(t, s, "yield_agent.run")
	rec := s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, signProof(t, other, claimed, req))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decode[model.ErrorResponse](t, rec)
	assert.Equal(t, "invalid payment proof", body.Error)
	assert.Equal(t, string(apperr.KindPaymentInvalid), body.Code)

	// the requirement is still redeemable by the real payer
	key := solana.NewWallet().PrivateKey
	rec = s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, signProof(t, key, key.PublicKey(), req))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateRejectsMalformedProof(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	rec := s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, http.Header{model.HeaderPayment: []string{"not json"}})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, string(apperr.KindPaymentInvalid), decode[model.ErrorResponse](t, rec).Code)
}

func TestGateProofForOtherTool(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	key := solana.NewWallet().PrivateKey

	req := challenge(t, s, "yield_agent.run")
	rec := s.do(t, http.MethodPost, "/tools/swap_agent.optimized", `{"direction":"SOL_TO_USDC","amount":"1"}`,
		signProof(t, key, key.PublicKey(), req))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, string(apperr.KindPaymentInvalid), decode[model.ErrorResponse](t, rec).Code)
}

func TestGateUnknownTool(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	rec := s.do(t, http.MethodPost, "/tools/nope", `{}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown tool: nope", decode[model.ErrorResponse](t, rec).Error)
}

func TestGateChallengesEveryPricedToolRegardlessOfBody(t *testing.T) {
	pricing := config.DefaultPricing()
	s := newTestServer(t, pricing, nil)

	for _, tool := range pricing.Tools() {
		t.Run(tool, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/tools/"+tool, "", nil)
			require.Equal(t, http.StatusPaymentRequired, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(model.HeaderPaymentRequired))
		})
	}
}

func TestGateValidatesBodyBeforeCharging(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	key := solana.NewWallet().PrivateKey

	req := challenge(t, s, "swap_agent.optimized")
	proof := signProof(t, key, key.PublicKey(), req)
	rec := s.do(t, http.MethodPost, "/tools/swap_agent.optimized", `{"direction":"SIDEWAYS"}`, proof)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get(model.HeaderPaymentResponse))

	receipts, err := s.ledger.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, receipts)

	_, status, err := s.store.Get(context.Background(), req.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusIssued, status)
}

func TestGatePassesUnpricedTools(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	rec := s.do(t, http.MethodPost, "/tools/echo", `{"hello":"world"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Result map[string]string `json:"result"`
	}](t, rec)
	assert.Equal(t, "world", body.Result["hello"])
}

func TestGateRateLimitsIssuance(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), NewIPRateLimiter(1, 1))

	rec := s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	rec = s.do(t, http.MethodPost, "/tools/yield_agent.run", `{}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, string(apperr.KindRateLimited), decode[model.ErrorResponse](t, rec).Code)
}

func TestGateMissingMerchantWallet(t *testing.T) {
	logger := logging.Discard()
	store := payment.NewMemoryStateStore(time.Minute)
	issuer := payment.NewIssuer(payment.IssuerConfig{Pricing: config.DefaultPricing(), TTL: time.Minute}, store)
	registry := tools.NewDefaultRegistry(tools.Deps{Yield: stubYield{}})
	gate := NewGate(issuer, payment.NewVerifier(store, nil), registry, nil, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /tools/{tool}", gate.Middleware(http.NotFoundHandler()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tools/yield_agent.run", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestToolsList(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	rec := s.do(t, http.MethodGet, "/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	infos := decode[[]tools.Info](t, rec)
	names := make([]string, 0, len(infos))
	for _, i := range infos {
		names = append(names, i.Name)
	}
	assert.Equal(t, []string{"echo", "swap_agent.optimized", "tx_explain.deep", "yield_agent.run"}, names)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[model.HealthResponse](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, config.PolicySignature, h.Policy)
	assert.Equal(t, "0.001", h.Pricing["tx_explain.deep"])
}

func TestReceiptsLimitValidation(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	for _, q := range []string{"0", "abc", "501"} {
		rec := s.do(t, http.MethodGet, "/receipts?limit="+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	rec := s.do(t, http.MethodGet, "/receipts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[model.ReceiptsResponse](t, rec).Receipts)
}

func TestVaultSwapHandler(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	s.swap.resp = &model.VaultSwapResponse{
		Success:      true,
		Direction:    model.SwapSOLToUSDC,
		InputAmount:  "0.1",
		OutputAmount: "15",
		Price:        "$150",
		TxSignature:  "sig",
	}

	rec := s.do(t, http.MethodPost, "/vault-swap", `{"direction":"SOL_TO_USDC","amount":"0.1","userWallet":"w"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "15", decode[model.VaultSwapResponse](t, rec).OutputAmount)
	assert.Equal(t, "0.1", s.swap.got.Amount)

	s.swap.err = apperr.InsufficientFunds("insufficient vault balance")
	rec = s.do(t, http.MethodPost, "/vault-swap", `{"direction":"SOL_TO_USDC","amount":"999","userWallet":"w"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient vault balance", decode[model.ErrorResponse](t, rec).Error)

	s.swap.err = apperr.Unconfirmed("transaction not confirmed", client.ErrUnconfirmed)
	rec = s.do(t, http.MethodPost, "/vault-swap", `{"direction":"SOL_TO_USDC","amount":"1","userWallet":"w"}`, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = s.do(t, http.MethodPost, "/vault-swap", `{bad`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/vault-swap", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAgentAndSessions(t *testing.T) {
	s := newTestServer(t, config.DefaultPricing(), nil)
	wallet := solana.NewWallet().PublicKey().String()

	rec := s.do(t, http.MethodPost, "/agent",
		`{"walletPubkey":"`+wallet+`","message":"swap 1 sol","sessionId":"abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[model.AgentResponse](t, rec)
	assert.Equal(t, model.IntentSwap, resp.Intent)
	require.Len(t, resp.ActionProposals, 1)

	rec = s.do(t, http.MethodPost, "/sessions/abc/messages", `{"role":"user","content":"thanks"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.SuccessResponse](t, rec).Success)

	rec = s.do(t, http.MethodGet, "/sessions/abc/messages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[model.SessionMessagesResponse](t, rec).Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "swap 1 sol", msgs[0].Content)
	assert.Equal(t, "thanks", msgs[2].Content)

	rec = s.do(t, http.MethodPost, "/sessions/abc/messages", `{"role":"system","content":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/sessions/abc/clear", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/sessions/abc/messages", "", nil)
	assert.Empty(t, decode[model.SessionMessagesResponse](t, rec).Messages)

	rec = s.do(t, http.MethodPost, "/agent", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", clientIP(r))
	r.RemoteAddr = "10.0.0.1"
	assert.Equal(t, "10.0.0.1", clientIP(r))
}

func TestIPRateLimiterEvictsIdle(t *testing.T) {
	l := NewIPRateLimiter(60, 1)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(visitorTTL + time.Second)
	l.evict()
	assert.Empty(t, l.visitors)
	assert.True(t, l.Allow("a"))
}
