package utils

import "log/slog"

// Drains c so producers blocked on it can finish
func ConsumeChannel[T any](c chan T) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		slog.Error("failed to consume channel", "error", err)
	}()
	for range c {
	}
}
