package strata

import "time"

// Clock abstracts time for the engine so the periodic background pass can
// be driven by virtual time in tests instead of sleeping.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the cancellable tick source used by the background loop.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// systemClock is the production Clock backed by the time package.
type systemClock struct{}

// SystemClock returns the real-time clock.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) Chan() <-chan time.Time {
	return s.t.C
}

func (s *systemTicker) Stop() {
	s.t.Stop()
}
