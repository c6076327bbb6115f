package cache

import (
	"time"
)

// Entry is a cached page payload. Reference data carries no cache-control
// discipline worth honoring, so entries live for a fixed TTL set on the
// manager rather than per entry.
type Entry struct {
	// Data is the raw response body.
	Data []byte `json:"data"`

	// StatusCode is the HTTP status of the cached response.
	StatusCode int `json:"status_code"`

	// CachedAt is when the page was stored.
	CachedAt time.Time `json:"cached_at"`
}
