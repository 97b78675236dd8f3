package ticketing

import "time"

// Clock abstracts time.Now so deadline behavior is testable. The engine and
// the expiry sweep take an injected Clock; production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
