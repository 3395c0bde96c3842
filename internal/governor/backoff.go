package governor

import (
	"math"
	"time"
)

// maxExponent bounds 2^n so the float product cannot overflow.
const maxExponent = 62

// backoffDelay returns min(maxBackoff, jitter(baseBackoff * 2^consecutiveErrors)).
// The caller holds ps.mu.
func (g *Governor) backoffDelay(ps *providerState) time.Duration {
	return computeBackoff(ps.baseBackoff, ps.config.MaxBackoff, ps.consecutiveErrors, ps.config.Jitter, g.rand())
}

// computeBackoff applies a symmetric jitter of ±jitter driven by r in [0, 1).
// With jitter at most MaxJitter each step still doubles past the previous one.
func computeBackoff(base, maxDelay time.Duration, n int, jitter, r float64) time.Duration {
	if base <= 0 {
		return 0
	}
	n = min(max(n, 0), maxExponent)
	d := float64(base) * math.Ldexp(1, n)
	d *= 1 + jitter*(2*r-1)
	if d >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}
