package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/payment"
)

// ToolIndex is the part of the tool registry the gate consults before charging.
type ToolIndex interface {
	Has(name string) bool
	Validate(name string, body []byte) error
}

// Gate puts priced tools behind the payment handshake.
type Gate struct {
	issuer   *payment.Issuer
	verifier *payment.Verifier
	tools    ToolIndex
	limiter  *IPRateLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate creates a gate. limiter may be nil to disable issuance limits.
func NewGate(issuer *payment.Issuer, verifier *payment.Verifier, tools ToolIndex, limiter *IPRateLimiter, logger *slog.Logger) *Gate {
	return &Gate{
		issuer:   issuer,
		verifier: verifier,
		tools:    tools,
		limiter:  limiter,
		logger:   logger,
		now:      time.Now,
	}
}

// Middleware wraps a handler serving POST /tools/{tool}. Unknown tools get 404 and
// unpriced tools pass straight through. Priced tools without a valid X-Payment get 402.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tool := r.PathValue("tool")
		if !g.tools.Has(tool) {
			writeError(w, r, g.logger, apperr.NotFound("Unknown tool: "+tool))
			return
		}
		if !g.issuer.Priced(tool) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(model.HeaderPayment)
		if header == "" {
			g.challenge(w, r, tool, "payment required")
			return
		}

		proof, err := payment.ParseProof(header)
		if err != nil {
			g.reject(w, r, tool, err)
			return
		}

		// a malformed body must not burn a payment
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, r, g.logger, apperr.Validation("request body too large"))
			return
		}
		if err := g.tools.Validate(tool, body); err != nil {
			writeError(w, r, g.logger, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		receipt, err := g.verifier.Verify(r.Context(), tool, proof)
		if err != nil {
			g.reject(w, r, tool, err)
			return
		}

		g.logger.InfoContext(r.Context(), "payment accepted",
			"tool", tool, "payment_id", receipt.PaymentID, "payer", receipt.Payer, "amount", receipt.Amount)

		resp, _ := json.Marshal(model.PaymentResponse{
			PaymentID: receipt.PaymentID,
			Status:    "settled",
			Timestamp: g.now().UnixMilli(),
		})
		w.Header().Set(model.HeaderPaymentResponse, string(resp))
		next.ServeHTTP(w, r)
	})
}

// reject answers a failed proof. Unknown, expired and consumed requirements get a
// fresh challenge; anything else is a plain 402 or the error's own status.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, tool string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindPaymentRequired:
		g.logger.DebugContext(r.Context(), "stale payment proof", "tool", tool, "error", err)
		g.challenge(w, r, tool, apperr.PublicMessage(err))
	case apperr.KindPaymentInvalid:
		g.logger.WarnContext(r.Context(), "payment proof rejected", "tool", tool, "error", err)
		writeError(w, r, g.logger, err)
	default:
		writeError(w, r, g.logger, err)
	}
}

func (g *Gate) challenge(w http.ResponseWriter, r *http.Request, tool, message string) {
	if g.limiter != nil && !g.limiter.Allow(clientIP(r)) {
		writeError(w, r, g.logger, apperr.RateLimited("too many payment requests"))
		return
	}
	req, err := g.issuer.Issue(r.Context(), tool)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}

	encoded, err := json.Marshal(req)
	if err != nil {
		writeError(w, r, g.logger, err)
		return
	}
	w.Header().Set(model.HeaderPaymentRequired, string(encoded))
	writeJSON(w, http.StatusPaymentRequired, model.PaymentRequiredResponse{
		Error:        message,
		Requirements: req,
	})
}
