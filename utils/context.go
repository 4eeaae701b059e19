package utils

import (
	"context"
	"time"
)

// Default deadline for single backend calls. Detection itself has no deadline
const DefaultTimeout = 30 * time.Second

func NewContext() (ctx context.Context, cancel func()) {
	return NewContextWithTimeout(DefaultTimeout)
}

func NewContextWithTimeout(timeout time.Duration) (ctx context.Context, cancel func()) {
	return context.WithTimeout(context.Background(), timeout)
}

// Sleep waits for d or until ctx is done. Returns false when ctx finished first
func Sleep(ctx context.Context, d time.Duration) (slept bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
