package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock gives UTC wall time; comparisons and analyses are stored in UTC
// for both MySQL (loc=UTC) and Postgres.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
