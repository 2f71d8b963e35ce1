package entityindex

import (
	"sync/atomic"
	"time"
)

// storeUnixNano and loadUnixNano give Base.Touch/Updated lock-free
// access to the monotonic update timestamp spec.md §3.2 requires every
// entity to carry, without promoting *int64 to an exported field.
func storeUnixNano(dst *int64, t time.Time) {
	atomic.StoreInt64(dst, t.UnixNano())
}

func loadUnixNano(src *int64) time.Time {
	return time.Unix(0, atomic.LoadInt64(src))
}
