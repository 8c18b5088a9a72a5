// Package poll implements the bounded fixed-interval retry loop the harness
// uses to wait for an external system to converge.
//
// The polled target is a controller reconciling external events with a
// roughly constant reaction latency, so the interval is deliberately fixed
// rather than backed off: the worst-case wait for a check is always
// attempts * interval.
package poll

import (
	"fmt"
	"time"

	"verifyctl/pkg/logging"
)

// FetchFunc fetches the current text of the polled resource. It is invoked
// once per attempt; results are never cached across attempts.
type FetchFunc func() (string, error)

// Predicate evaluates one fetched snapshot.
type Predicate func(text string) bool

// TimeoutError is returned when the predicate never held within the retry
// budget. It carries the last observed snapshot for diagnostics.
type TimeoutError struct {
	Attempts     int
	Interval     time.Duration
	LastSnapshot string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("predicate not satisfied after %d attempts at %v intervals; last snapshot:\n%s",
		e.Attempts, e.Interval, e.LastSnapshot)
}

// Until repeatedly fetches and evaluates until the predicate holds or the
// budget is exhausted. On success it returns the accepted snapshot
// immediately, without waiting out the rest of the budget, so callers can
// make further assertions against that exact snapshot.
//
// A failed fetch (e.g. connection refused while the target is still starting)
// counts the same as an unsatisfied predicate: it consumes an attempt and is
// retried after the interval.
func Until(fetch FetchFunc, predicate Predicate, attempts int, interval time.Duration) (string, error) {
	var last string
	for remaining := attempts; remaining > 0; remaining-- {
		text, err := fetch()
		if err != nil {
			logging.Debug("poll", "fetch failed (%d attempts left): %v", remaining-1, err)
			time.Sleep(interval)
			continue
		}
		last = text
		if predicate(text) {
			return text, nil
		}
		time.Sleep(interval)
	}
	return last, &TimeoutError{Attempts: attempts, Interval: interval, LastSnapshot: last}
}
