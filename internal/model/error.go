package model

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// PaymentRequiredResponse is the 402 body returned alongside the X-Payment-Required header.
type PaymentRequiredResponse struct {
	Error        string               `json:"error"`
	Requirements *PaymentRequirements `json:"requirements"`
}
