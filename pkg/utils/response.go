package utils

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// SetRateLimitHeaders attaches the standard X-RateLimit-* trio.
func SetRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetIn time.Duration) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Round(time.Second).Seconds())))
}

// SetRetryAfter attaches a Retry-After header, rounding up so clients never
// retry early.
func SetRetryAfter(w http.ResponseWriter, wait time.Duration) {
	secs := int(wait.Seconds())
	if wait > time.Duration(secs)*time.Second {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
