package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpValidationError      = "validation_failed"
	HttpNotFoundError        = "not_found"
	HttpUnsupportedKindError = "unsupported_event_kind"
)

// ErrorResponse is the error response body shared by all HTTP surfaces.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
