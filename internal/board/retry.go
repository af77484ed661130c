package board

import "net/http"

// retryableStatus reports whether an HTTP status code from the board
// represents a transient failure worth retrying (spec.md §4.5): 429 and any
// 5xx. Every other 4xx is fatal — retrying a malformed request or a 404
// never helps.
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500
}
