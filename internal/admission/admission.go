// Package admission implements the admission controller (C9): a shared
// atomic counter bounding concurrent transcodings, plus an optional
// leaky-bucket rate limiter guarding the counter itself from request floods.
package admission

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/listenupapp/castshelf/internal/apperr"
)

// Controller admits or rejects transcoding requests before a subprocess is
// spawned for them.
type Controller struct {
	maxTranscodings int64
	running         atomic.Int64
	limiter         *rate.Limiter
}

// New builds a Controller. maxTranscodings bounds concurrent transcodes.
// ratePerSec/burst configure the leaky bucket; a non-positive ratePerSec
// disables the rate limiter, leaving only the concurrency bound.
func New(maxTranscodings int, ratePerSec, burst float64) *Controller {
	c := &Controller{maxTranscodings: int64(maxTranscodings)}
	if ratePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSec), int(burst))
	}
	return c
}

// Release is returned by Admit; the caller must call it exactly once when
// the transcoding completes, regardless of outcome.
type Release func()

// Admit checks the rate limiter then the concurrency bound, in that order,
// and increments the running count on success. Returns
// apperr.ErrTooManyRequests if either check fails.
func (c *Controller) Admit() (Release, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, apperr.TooManyRequests("transcoding request rate exceeded")
	}

	next := c.running.Add(1)
	if next > c.maxTranscodings {
		c.running.Add(-1)
		return nil, apperr.TooManyRequests(fmt.Sprintf("already running %d of %d permitted transcodings", next-1, c.maxTranscodings))
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		c.running.Add(-1)
	}, nil
}

// Running reports the current in-flight transcoding count, for diagnostics.
func (c *Controller) Running() int64 {
	return c.running.Load()
}
