package heart

import "math/rand"

// randInt64 returns a pseudo-random value in [0, n). n must be positive.
func randInt64(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return rand.Int63n(n)
}
