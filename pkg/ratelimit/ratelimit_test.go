// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func Test_getLimit(t *testing.T) {
	eps := 1e-9

	assert.InDelta(t, float64(rate.Limit(0)), float64(getLimit(0, time.Minute)), eps)
	assert.InDelta(t, float64(rate.Limit(0)), float64(getLimit(0, 0)), eps)
	assert.InEpsilon(t, float64(rate.Limit(1)), float64(getLimit(60, time.Minute)), eps)
	assert.InEpsilon(t, float64(rate.Limit(10.0/60)), float64(getLimit(10, time.Minute)), eps)
	// 1/ms => 1000/second
	assert.InEpsilon(t, float64(rate.Limit(1000)), float64(getLimit(1, time.Millisecond)), eps)
	// 3600/hour => 1/second
	assert.InEpsilon(t, float64(rate.Limit(1)), float64(getLimit(60*60, time.Hour)), eps)

	assert.Equal(t, rate.Inf, getLimit(1, 0))
	assert.Equal(t, rate.Inf, getLimit(1, -1))
}

type recordingEncoder struct {
	mu     sync.Mutex
	events []*InfoEvent
}

func (r *recordingEncoder) Encode(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v.(*InfoEvent))
	return nil
}

func (r *recordingEncoder) dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint64
	for _, ev := range r.events {
		n += ev.RateLimitInfo.NumberOfDroppedEvents
	}
	return n
}

func TestNewRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewRateLimiter(context.Background(), time.Minute, -1, &recordingEncoder{}))
}

func TestRateLimiter_Report(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	enc := &recordingEncoder{}
	r := NewRateLimiter(ctx, time.Hour, 2, enc)
	require.NotNil(t, r)

	allowed := 0
	for range 10 {
		if r.Allow() {
			allowed++
		} else {
			r.Drop()
		}
	}
	assert.Equal(t, 2, allowed)
	assert.Equal(t, uint64(8), r.Dropped())

	cancel()
	assert.Eventually(t, func() bool { return enc.dropped() == 8 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), r.Dropped())
}
