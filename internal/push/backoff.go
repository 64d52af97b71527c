package push

import "time"

// Delay returns the wait before reconnect attempt n (1-based). Linear is
// always base; exponential is min(base*2^(n-1), maxDelay).
func Delay(strategy Strategy, base, maxDelay time.Duration, attempt int) time.Duration {
	if strategy == StrategyLinear {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}
