package api

import (
	"sync/atomic"
	"time"

	"weekplan/week"
)

var (
	lastTimestamp int64
)

func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// weekIDsOf returns the distinct week ids containing the given dates.
func weekIDsOf(dates ...string) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		w, err := week.OfDate(d)
		if err != nil {
			continue
		}
		dup := false
		for _, id := range out {
			if id == w.ID {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, w.ID)
		}
	}
	return out
}
