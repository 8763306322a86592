package chi

// ErrorCode is the machine-readable error code of an API error response.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeInvalidID          ErrorCode = "invalid_id"
	ErrorCodeInvalidQuery       ErrorCode = "invalid_query"
	ErrorCodeNotFound           ErrorCode = "not_found"
	ErrorCodeMalformedData      ErrorCode = "malformed_data"
	ErrorCodeQueryFailed        ErrorCode = "query_failed"
	ErrorCodeShardFailure       ErrorCode = "shard_failure"
	ErrorCodeContentUnavailable ErrorCode = "content_unavailable"
	ErrorCodeCancelled          ErrorCode = "cancelled"
	ErrorCodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryResponse is one page of query results.
type QueryResponse struct {
	Models     []map[string]any `json:"models"`
	UpperBound int              `json:"upper_bound"`
	// NextOffset is set while more results may follow.
	NextOffset *int `json:"next_offset,omitempty"`
}

// LinkResponse maps an external link to a content id.
type LinkResponse struct {
	ID string `json:"id"`
}

// HealthResponse reports the status of each component.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}
