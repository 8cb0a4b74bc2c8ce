package clock

import "time"

// Clock is the time source for order processing and its latency metrics.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock time.Time

// NewFixed returns a clock frozen at t, in UTC.
func NewFixed(t time.Time) Clock {
	return fixedClock(t.UTC())
}

func (f fixedClock) Now() time.Time {
	return time.Time(f)
}
