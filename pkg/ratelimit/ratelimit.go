// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package ratelimit

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/pidtrace/pidtrace/pkg/logger"
)

// InfoEncoder receives the periodic drop reports.
type InfoEncoder interface {
	Encode(v any) error
}

type RateLimiter struct {
	*rate.Limiter
	ctx            context.Context
	reportInterval time.Duration
	dropped        atomic.Uint64
}

// getLimit converts an numEvents and interval to rate.Limit which is a floating point value
// representing number of events per second.
func getLimit(numEvents int, interval time.Duration) rate.Limit {
	if numEvents == 0 {
		return 0
	}
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval / time.Duration(numEvents))
}

// NewRateLimiter allows numEvents per interval. A negative numEvents
// disables rate limiting and returns nil. Drops are reported to encoder
// once per interval until ctx is done.
func NewRateLimiter(ctx context.Context, interval time.Duration, numEvents int, encoder InfoEncoder) *RateLimiter {
	if numEvents < 0 {
		return nil
	}
	r := &RateLimiter{
		Limiter:        rate.NewLimiter(getLimit(numEvents, interval), numEvents),
		ctx:            ctx,
		reportInterval: interval,
	}
	go r.reportRateLimitInfo(encoder)
	return r
}

type Info struct {
	NumberOfDroppedEvents uint64 `json:"number_of_dropped_events"`
}

type InfoEvent struct {
	RateLimitInfo *Info     `json:"rate_limit_info"`
	Time          time.Time `json:"time"`
}

func (r *RateLimiter) reportRateLimitInfo(encoder InfoEncoder) {
	ticker := time.NewTicker(r.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.report(encoder)
		case <-r.ctx.Done():
			r.report(encoder)
			return
		}
	}
}

func (r *RateLimiter) report(encoder InfoEncoder) {
	dropped := r.dropped.Swap(0)
	if dropped == 0 {
		return
	}
	err := encoder.Encode(&InfoEvent{
		RateLimitInfo: &Info{NumberOfDroppedEvents: dropped},
		Time:          time.Now().UTC(),
	})
	if err != nil {
		logger.GetLogger().
			WithError(err).
			WithField("dropped", dropped).
			Warn("Failed to encode rate_limit_info event")
	}
}

func (r *RateLimiter) Drop() {
	r.dropped.Inc()
}

// Dropped is the number of drops not yet reported.
func (r *RateLimiter) Dropped() uint64 {
	return r.dropped.Load()
}
