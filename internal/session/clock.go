package session

import (
	"sync"
	"time"
)

// Clock drives the elapsed-time counter.
type Clock interface {
	Now() time.Time
	// Every calls fn every d until the returned stop func is called. stop
	// must not wait for a running fn.
	Every(d time.Duration, fn func()) (stop func())
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Every runs fn on a time.Ticker.
func (SystemClock) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
