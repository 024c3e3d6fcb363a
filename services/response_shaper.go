package services

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ResponseShaper pads every coordinator response to a common wall-clock
// duration so that success, validation failure, rate limiting, and not-found
// are indistinguishable by timing.
//
// The padding jitter is Gaussian, not uniform: uniform noise has a
// recognizable flat distribution under statistical timing analysis, while
// Gaussian noise blends into ordinary network jitter.
type ResponseShaper struct {
	target time.Duration
	stdDev time.Duration

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewResponseShaper creates a shaper with the given target duration and
// jitter standard deviation.
func NewResponseShaper(target, stdDev time.Duration) *ResponseShaper {
	return &ResponseShaper{
		target: target,
		stdDev: stdDev,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep:  sleepContext,
	}
}

// Shape blocks until the response has consumed the target duration plus
// jitter, measured from start. Responses already slower than the target are
// returned as-is. Context cancellation cuts the sleep short; there is
// nothing to protect once the caller has gone away.
func (s *ResponseShaper) Shape(ctx context.Context, start time.Time) {
	elapsed := time.Since(start)
	padded := s.target + time.Duration(s.gaussian()*float64(s.stdDev))
	if remaining := padded - elapsed; remaining > 0 {
		s.sleep(ctx, remaining)
	}
}

// gaussian draws a standard normal value using the polar Box-Muller method.
func (s *ResponseShaper) gaussian() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		u := 2*s.rng.Float64() - 1
		v := 2*s.rng.Float64() - 1
		q := u*u + v*v
		if q > 0 && q < 1 {
			return u * math.Sqrt(-2*math.Log(q)/q)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
