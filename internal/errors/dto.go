package errors

// ErrorResponse is the single error envelope rendered at the HTTP boundary
type ErrorResponse struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Details    map[string]any `json:"details,omitempty"`
}
