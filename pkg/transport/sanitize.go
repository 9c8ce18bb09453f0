package transport

import (
	"net/http"
	"strings"
)

// strippedHeaders never reach a backend: session state and identification
// headers injected by browsers and proxies.
var strippedHeaders = []string{
	"Cookie",
	"Cookie2",
	"Set-Cookie",
	"Authorization",
	"Proxy-Authorization",
	"Forwarded",
	"Via",
	"X-Real-Ip",
	"X-Client-Ip",
	"True-Client-Ip",
	"Cf-Connecting-Ip",
}

const forwardedPrefix = "X-Forwarded-"

// SanitizeHeader returns a copy of h without stripped headers.
func SanitizeHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range strippedHeaders {
		out.Del(k)
	}
	for k := range out {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), forwardedPrefix) {
			delete(out, k)
		}
	}
	return out
}

// headerSize approximates the wire size of h as "Key: value\r\n" lines.
func headerSize(h http.Header) int {
	n := 0
	for k, vs := range h {
		for _, v := range vs {
			n += len(k) + len(v) + 4
		}
	}
	return n
}
