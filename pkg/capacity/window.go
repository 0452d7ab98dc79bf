package capacity

import (
	"math"
	"time"
)

// slidingCounter is a sliding-window counter over one dimension (requests or
// tokens). It keeps two adjacent sub-windows of half the rolling window size
// and estimates usage over the full window by decaying the previous
// sub-window's count as the current one progresses.
//
// The zero limit means the dimension is unlimited and every check passes.
//
// Not safe for concurrent use; the owning ledger entry serializes access.
type slidingCounter struct {
	limit  int64         // 0 = unlimited
	stride time.Duration // sub-window size (half the rolling window)
	start  time.Time     // start of the current sub-window
	cur    int64         // count in the current sub-window
	prev   int64         // count in the previous sub-window
}

func newSlidingCounter(limit int64, window time.Duration) slidingCounter {
	stride := window / 2
	if stride <= 0 {
		stride = window
	}
	return slidingCounter{limit: limit, stride: stride}
}

// roll advances the sub-windows so that now falls inside the current one.
// Counts older than one full stride behind are discarded.
func (c *slidingCounter) roll(now time.Time) {
	if c.start.IsZero() {
		c.start = now
		return
	}

	elapsed := now.Sub(c.start)
	if elapsed < c.stride {
		return
	}

	steps := int64(elapsed / c.stride)
	if steps == 1 {
		c.prev = c.cur
	} else {
		c.prev = 0
	}
	c.cur = 0
	c.start = c.start.Add(time.Duration(steps) * c.stride)
}

// projected returns the estimated usage over the rolling window at now.
// The previous sub-window decays linearly; the estimate rounds up so the
// counter never under-reports consumption.
func (c *slidingCounter) projected(now time.Time) int64 {
	c.roll(now)
	if c.prev == 0 {
		return c.cur
	}

	overlap := 1.0 - float64(now.Sub(c.start))/float64(c.stride)
	if overlap < 0 {
		overlap = 0
	}
	return c.cur + int64(math.Ceil(float64(c.prev)*overlap))
}

// fits reports whether n more units fit under the limit at now.
func (c *slidingCounter) fits(now time.Time, n int64) bool {
	if c.limit <= 0 {
		return true
	}
	return c.projected(now)+n <= c.limit
}

// add consumes n units in the current sub-window. Negative n refunds;
// the refund is applied to the current sub-window first, then the previous
// one, and never drives either below zero.
func (c *slidingCounter) add(now time.Time, n int64) {
	c.roll(now)
	if n >= 0 {
		c.cur += n
		return
	}

	refund := -n
	if c.cur >= refund {
		c.cur -= refund
		return
	}
	refund -= c.cur
	c.cur = 0
	c.prev -= refund
	if c.prev < 0 {
		c.prev = 0
	}
}

// available returns the units still admissible at now (0 when saturated,
// limit when unlimited is approximated by the limit itself being 0).
func (c *slidingCounter) available(now time.Time) int64 {
	if c.limit <= 0 {
		return math.MaxInt64
	}
	avail := c.limit - c.projected(now)
	if avail < 0 {
		return 0
	}
	return avail
}

// waitFor returns the smallest non-negative delay after which n units would
// fit under the limit, computed from the sub-window boundary and the overlap
// decay. When n alone exceeds the limit the full rolling window is returned
// as a conservative bound; the caller rejects such requests via deadline or
// validation.
func (c *slidingCounter) waitFor(now time.Time, n int64) time.Duration {
	if c.limit <= 0 || c.fits(now, n) {
		return 0
	}
	if n > c.limit {
		return 2 * c.stride
	}

	s := float64(c.stride)
	elapsed := float64(now.Sub(c.start))

	// If the current sub-window alone leaves room, decay of the previous
	// sub-window frees capacity before the boundary.
	if c.cur+n <= c.limit && c.prev > 0 {
		frac := float64(c.limit-c.cur-n) / float64(c.prev)
		wait := time.Duration(s*(1.0-frac) - elapsed)
		if wait < 0 {
			wait = 0
		}
		return wait
	}

	// Otherwise wait to the boundary, where the current count becomes the
	// decaying previous one, then for enough of its decay.
	toBoundary := time.Duration(s - elapsed)
	if toBoundary < 0 {
		toBoundary = 0
	}
	if c.cur == 0 {
		return toBoundary
	}

	frac := float64(c.limit-n) / float64(c.cur)
	if frac >= 1 {
		return toBoundary
	}
	if frac < 0 {
		frac = 0
	}
	return toBoundary + time.Duration(s*(1.0-frac))
}

// resetAt returns when the current sub-window rolls over.
func (c *slidingCounter) resetAt(now time.Time) time.Time {
	c.roll(now)
	if c.start.IsZero() {
		return now.Add(c.stride)
	}
	return c.start.Add(c.stride)
}
