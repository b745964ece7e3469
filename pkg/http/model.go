package http

// APIResponse is the envelope every route answers with. Status mirrors the
// logical outcome; the transport status stays 200 except for 204s.
type APIResponse struct {
	Status  int    `json:"status" example:"200"`
	Message string `json:"message" example:"OK"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string         `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string         `json:"field,omitempty" example:"text"`
	Message string         `json:"message,omitempty" example:"text is required"`
	Params  map[string]any `json:"params,omitempty"`
}

// ListDataResponse wraps list payloads.
type ListDataResponse struct {
	Rows  any   `json:"rows"`
	Total int64 `json:"total"`
}
