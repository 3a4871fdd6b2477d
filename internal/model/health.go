package model

// HealthResponse represents response for GET /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Policy  string            `json:"policy"`
	Network Network           `json:"network"`
	Pricing map[string]string `json:"pricing"`
}
