package model

// ErrorResponse is the JSON error envelope shared by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Data  any    `json:"data,omitempty"`
}
