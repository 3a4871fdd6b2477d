// Package apperr defines the error kinds surfaced at the HTTP boundary.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for retry semantics and HTTP status mapping.
type Kind string

const (
	KindValidation           Kind = "VALIDATION_ERROR"
	KindPaymentRequired      Kind = "PAYMENT_REQUIRED"
	KindPaymentInvalid       Kind = "PAYMENT_INVALID"
	KindNotFound             Kind = "NOT_FOUND"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindUpstreamUnavailable  Kind = "UPSTREAM_UNAVAILABLE"
	KindUnconfirmed          Kind = "UNCONFIRMED"
	KindInsufficientFunds    Kind = "INSUFFICIENT_FUNDS"
	KindConfigurationMissing Kind = "CONFIGURATION_MISSING"
	KindInternal             Kind = "INTERNAL"
)

// Error is a classified error. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.PaymentInvalid("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newErr(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error           { return newErr(KindValidation, msg, nil) }
func PaymentRequired(msg string) *Error      { return newErr(KindPaymentRequired, msg, nil) }
func PaymentInvalid(msg string) *Error       { return newErr(KindPaymentInvalid, msg, nil) }
func NotFound(msg string) *Error             { return newErr(KindNotFound, msg, nil) }
func RateLimited(msg string) *Error          { return newErr(KindRateLimited, msg, nil) }
func InsufficientFunds(msg string) *Error    { return newErr(KindInsufficientFunds, msg, nil) }
func ConfigurationMissing(msg string) *Error { return newErr(KindConfigurationMissing, msg, nil) }

// Upstream wraps a failure of an external dependency (price feed, RPC).
func Upstream(msg string, err error) *Error {
	return newErr(KindUpstreamUnavailable, msg, err)
}

// Unconfirmed marks a submitted transaction whose confirmation could not be observed.
func Unconfirmed(msg string, err error) *Error {
	return newErr(KindUnconfirmed, msg, err)
}

// Wrap attaches a kind to an arbitrary error.
func Wrap(kind Kind, msg string, err error) *Error {
	return newErr(kind, msg, err)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInsufficientFunds:
		return http.StatusBadRequest
	case KindPaymentRequired, KindPaymentInvalid:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	case KindUnconfirmed:
		return http.StatusGatewayTimeout
	case KindConfigurationMissing:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-facing message for err: the Message of the first
// *Error in the chain. Causes and internal errors are not exposed.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal server error"
}
