package acquire

import (
	"fmt"
	"sync"
	"time"
)

// Progress is one update delivered to the caller's sink.
type Progress struct {
	PercentComplete string
}

// ProgressSink receives progress updates. It may be slow; the engine never
// waits for it.
type ProgressSink func(Progress)

// progressRelay throttles byte counts into percentage updates and hands
// them to the sink on its own goroutine. Updates arriving while the sink is
// still busy are dropped.
type progressRelay struct {
	interval time.Duration
	now      func() time.Time
	ch       chan Progress

	mu     sync.Mutex
	last   time.Time
	closed bool
}

func newProgressRelay(sink ProgressSink, interval time.Duration, now func() time.Time) *progressRelay {
	if sink == nil {
		return nil
	}
	r := &progressRelay{
		interval: interval,
		now:      now,
		ch:       make(chan Progress, 1),
	}
	go func() {
		for p := range r.ch {
			sink(p)
		}
	}()
	return r
}

func (r *progressRelay) report(downloaded, total int64) {
	if r == nil || total <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now

	select {
	case r.ch <- Progress{PercentComplete: formatPercent(downloaded, total)}:
	default:
	}
}

func (r *progressRelay) close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

func formatPercent(downloaded, total int64) string {
	pct := float64(downloaded) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%.1f%%", pct)
}
