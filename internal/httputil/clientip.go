package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the originating client address from a request. Proxy
// headers are consulted first (X-Forwarded-For, then X-Real-IP) and only
// used when they parse as an address; otherwise RemoteAddr wins.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseAddr(strings.TrimSpace(first)); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := parseAddr(strings.TrimSpace(xri)); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseAddr normalizes a candidate address, accepting bare IPs and
// host:port forms, bracketed IPv6 included.
func parseAddr(candidate string) string {
	if candidate == "" {
		return ""
	}
	if ip := net.ParseIP(strings.Trim(candidate, "[]")); ip != nil {
		return ip.String()
	}
	if host, _, err := net.SplitHostPort(candidate); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}
