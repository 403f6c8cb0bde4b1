// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"go.mxclient.dev/mxclient/signal"
)

// NetworkErrorEvent is emitted once per retry.1.
type NetworkErrorEvent struct {
	RetriesTaken int
	NextRetryIn  time.Duration
	Cause        error
}

// Job is one typed HTTP request/response cycle: construction, retry with
// exponential backoff, background-vs-foreground scheduling, cancellation
// and typed response parsing. A Job is single-use: once
// Start has been called, a new Job is required to repeat the request.
type Job struct {
	ID xid.ID

	Request     Request
	Codec       Codec
	RetryPolicy RetryPolicy
	Log         zerolog.Logger

	// ParseSuccess decodes a non-empty 2xx body. Returning an error
	// transitions the job to Failure(IncorrectResponseError, ...).
	// It may be nil for endpoints with no useful response body.
	ParseSuccess func(body []byte, codec Codec) error

	result     *signal.Dispatcher[Status]
	success    *signal.Dispatcher[Status]
	failure    *signal.Dispatcher[Status]
	networkErr *signal.Dispatcher[NetworkErrorEvent]

	mu       sync.Mutex
	state    State
	status   Status
	cancel   context.CancelFunc
	resulted bool
}

// New constructs a Job with sane defaults: NeedsToken true, the default
// JSON codec, and default retry policy.
func New(verb Verb, path string) *Job {
	return &Job{
		ID:          xid.New(),
		Request:     Request{Verb: verb, Path: path, NeedsToken: true},
		Codec:       DefaultCodec{},
		RetryPolicy: DefaultRetryPolicy,
		Log:         zerolog.Nop(),
		result:      signal.NewDispatcher[Status](),
		success:     signal.NewDispatcher[Status](),
		failure:     signal.NewDispatcher[Status](),
		networkErr:  signal.NewDispatcher[NetworkErrorEvent](),
	}
}

func (j *Job) OnResult(handler func(Status)) signal.Token       { return j.result.Subscribe(handler) }
func (j *Job) OnSuccess(handler func(Status)) signal.Token      { return j.success.Subscribe(handler) }
func (j *Job) OnFailure(handler func(Status)) signal.Token      { return j.failure.Subscribe(handler) }
func (j *Job) OnNetworkError(handler func(NetworkErrorEvent)) signal.Token {
	return j.networkErr.Subscribe(handler)
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Abandon cancels the job if it hasn't completed. If it already completed,
// this is a no-op: requires that observers of an already
// terminal job never see it flip to Abandoned retroactively.
func (j *Job) Abandon() {
	j.mu.Lock()
	if j.state == Success || j.state == Failed {
		j.mu.Unlock()
		return
	}
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start submits the job to transport under policy and returns immediately;
// the request, any retries, and the terminal signal emission all happen on
// a background goroutine. Jobs are fire-and-observe: callers
// subscribe via OnSuccess/OnFailure/OnResult rather than blocking on Start.
func (j *Job) Start(ctx context.Context, transport Transport, policy Policy) {
	ctx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.cancel = cancel
	j.state = InProgress
	j.mu.Unlock()

	go j.run(ctx, transport, policy)
}

func (j *Job) run(ctx context.Context, transport Transport, policy Policy) {
	priority := policy.priority()
	attempt := 0
	for {
		resp, err := transport.Do(ctx, j.Request, priority)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				j.finish(Status{State: Failed, Kind: Abandoned, Message: "job abandoned"})
				return
			}
			kind := NetworkError
			if errors.Is(err, context.DeadlineExceeded) {
				kind = TimeoutError
			}
			attempt++
			if attempt > j.RetryPolicy.MaxRetries {
				j.finish(Failure(kind, err.Error(), nil))
				return
			}
			delay := j.RetryPolicy.Backoff(attempt)
			j.Log.Warn().Err(err).Int("retries_taken", attempt).Dur("next_retry_in", delay).Msg("job failed, retrying")
			j.networkErr.Emit(NetworkErrorEvent{RetriesTaken: attempt, NextRetryIn: delay, Cause: err})
			select {
			case <-ctx.Done():
				j.finish(Status{State: Failed, Kind: Abandoned, Message: "job abandoned"})
				return
			case <-time.After(delay):
				continue
			}
		}

		j.finish(j.parseResponse(resp))
		return
	}
}

func (j *Job) parseResponse(resp Response) Status {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return j.statusForFailedResponse(resp)
	}
	if len(resp.Body) > 0 && j.ParseSuccess != nil {
		if err := j.ParseSuccess(resp.Body, j.Codec); err != nil {
			return Failure(IncorrectResponseError, err.Error(), nil)
		}
	}
	return Successful()
}

func (j *Job) statusForFailedResponse(resp Response) Status {
	var details map[string]any
	_ = j.Codec.Decode(resp.Body, &details)
	kind := IncorrectResponseError
	switch resp.StatusCode {
	case 400, 401, 403:
		kind = IncorrectRequestError
	case 404:
		kind = NotFoundError
	case 413:
		kind = TooLargeForUpload
	}
	message := ""
	if details != nil {
		if e, ok := details["error"].(string); ok {
			message = e
		}
	}
	return Failure(kind, message, details)
}

func (j *Job) finish(status Status) {
	j.mu.Lock()
	if j.state == Success || j.state == Failed {
		j.mu.Unlock()
		return
	}
	if status.State == Success {
		j.state = Success
	} else {
		j.state = Failed
	}
	j.status = status
	alreadyResulted := j.resulted
	j.resulted = true
	j.mu.Unlock()

	if alreadyResulted {
		return
	}
	j.result.Emit(status)
	if status.State == Success {
		j.success.Emit(status)
	} else {
		j.failure.Emit(status)
	}
}
