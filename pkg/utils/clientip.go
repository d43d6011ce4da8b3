package utils

import (
	"net"
	"net/http"
)

// ClientKey derives the rate-limit key for a request from its network
// address. chi's RealIP middleware has already folded X-Forwarded-For /
// X-Real-IP into RemoteAddr by the time this runs.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
