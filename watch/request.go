package watch

import "time"

// Request is an outstanding payment request being watched
type Request struct {
	// Invoice string or receiving address. Empty for reusable addresses
	// where any incoming payment settles the request
	Token string
	// When the request was issued
	CreatedAt time.Time
	// Informative only. Zero for flexible amount requests, never used for matching
	ExpectedAmount uint64
}
