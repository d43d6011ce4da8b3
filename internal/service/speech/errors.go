package speech

import (
	"fmt"
	"net/http"

	"github.com/voicelab/voice-widget/backend/internal/fault"
)

// APIError represents an error response from a speech provider API.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("speech [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports whether this is a quota/rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports whether this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// classify wraps an APIError with the fault kind the pipeline branches on.
func classify(apiErr *APIError) error {
	switch {
	case apiErr.IsRateLimited():
		return fault.Wrap(fault.KindQuota, "provider quota exceeded", apiErr)
	case apiErr.IsServerError():
		return fault.Wrap(fault.KindNetwork, "provider unavailable", apiErr)
	default:
		return fault.Wrap(fault.KindUnknown, "provider request failed", apiErr)
	}
}
