// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package job

import "time"

// Policy chooses how a Job competes for network priority. Background
// jobs (sync, thumbnails) yield to Foreground jobs.
type Policy int

const (
	Foreground Policy = iota
	Background
)

func (p Policy) priority() Priority {
	if p == Background {
		return PriorityBackground
	}
	return PriorityForeground
}

// RetryPolicy is the exponential-backoff schedule for a failed job:
// initial 5s, doubling, capped at 5 minutes, at most 7 retries.
type RetryPolicy struct {
	Initial    time.Duration
	Cap        time.Duration
	MaxRetries int
}

var DefaultRetryPolicy = RetryPolicy{
	Initial:    5 * time.Second,
	Cap:        5 * time.Minute,
	MaxRetries: 7,
}

// Backoff returns the delay before the (1-indexed) retryNumber-th retry.
func (p RetryPolicy) Backoff(retryNumber int) time.Duration {
	d := p.Initial
	for i := 1; i < retryNumber; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}
