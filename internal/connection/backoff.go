package connection

import "time"

// MaxReconnectDelay caps the reconnect backoff.
const MaxReconnectDelay = 30 * time.Second

// ReconnectDelay returns min(base * 2^attempt, MaxReconnectDelay).
func ReconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= MaxReconnectDelay || delay <= 0 {
			return MaxReconnectDelay
		}
	}
	if delay > MaxReconnectDelay {
		return MaxReconnectDelay
	}
	return delay
}
