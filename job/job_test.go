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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport plays back a fixed sequence of results, one per call
// to Do, and records how it was invoked.
type scriptedTransport struct {
	mu      sync.Mutex
	results []func() (Response, error)
	calls   int
}

func (t *scriptedTransport) Do(ctx context.Context, req Request, priority Priority) (Response, error) {
	t.mu.Lock()
	i := t.calls
	t.calls++
	t.mu.Unlock()
	if i >= len(t.results) {
		return Response{}, errors.New("scriptedTransport: ran out of scripted results")
	}
	return t.results[i]()
}

func TestJob_RetryThenSuccess(t *testing.T) {
	// scenario S5: two NetworkErrors then a 200 OK.
	transport := &scriptedTransport{results: []func() (Response, error){
		func() (Response, error) { return Response{}, errors.New("connection reset") },
		func() (Response, error) { return Response{}, errors.New("connection reset") },
		func() (Response, error) {
			return Response{StatusCode: 200, Body: []byte(`{"user_id":"@u:s","access_token":"tok"}`)}, nil
		},
	}}

	j := New(POST, "/login")
	j.RetryPolicy = RetryPolicy{Initial: time.Millisecond, Cap: 10 * time.Millisecond, MaxRetries: 7}

	var netErrs []NetworkErrorEvent
	var mu sync.Mutex
	j.OnNetworkError(func(e NetworkErrorEvent) {
		mu.Lock()
		netErrs = append(netErrs, e)
		mu.Unlock()
	})

	var failed bool
	j.OnFailure(func(Status) { failed = true })

	done := make(chan Status, 1)
	j.OnSuccess(func(s Status) { done <- s })

	j.Start(context.Background(), transport, Foreground)

	select {
	case s := <-done:
		assert.Equal(t, Success, s.State)
	case <-time.After(time.Second):
		t.Fatal("job did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, netErrs, 2)
	assert.Equal(t, 1, netErrs[0].RetriesTaken)
	assert.Equal(t, 2, netErrs[1].RetriesTaken)
	assert.False(t, failed)
}

func TestJob_NonRetryableFailureFiresOnce(t *testing.T) {
	transport := &scriptedTransport{results: []func() (Response, error){
		func() (Response, error) {
			return Response{StatusCode: 404, Body: []byte(`{"errcode":"M_NOT_FOUND","error":"no such room"}`)}, nil
		},
	}}
	j := New(GET, "/rooms/!x:s/messages")

	var failures int
	j.OnFailure(func(Status) { failures++ })
	done := make(chan Status, 1)
	j.OnResult(func(s Status) { done <- s })

	j.Start(context.Background(), transport, Foreground)

	select {
	case s := <-done:
		assert.Equal(t, NotFoundError, s.Kind)
	case <-time.After(time.Second):
		t.Fatal("job did not complete")
	}
	assert.Equal(t, 1, failures)
}

func TestJob_AbandonAfterCompletionIsNoop(t *testing.T) {
	transport := &scriptedTransport{results: []func() (Response, error){
		func() (Response, error) { return Response{StatusCode: 200}, nil },
	}}
	j := New(POST, "/logout")
	done := make(chan Status, 1)
	j.OnResult(func(s Status) { done <- s })
	j.Start(context.Background(), transport, Foreground)
	<-done

	j.Abandon()
	assert.Equal(t, Success, j.Status().State)
}

func TestJob_AbandonDuringBackoffEmitsAbandoned(t *testing.T) {
	transport := &scriptedTransport{results: []func() (Response, error){
		func() (Response, error) { return Response{}, errors.New("timeout-ish") },
	}}
	j := New(GET, "/sync")
	j.RetryPolicy = RetryPolicy{Initial: time.Hour, Cap: time.Hour, MaxRetries: 7}

	done := make(chan Status, 1)
	j.OnResult(func(s Status) { done <- s })
	j.Start(context.Background(), transport, Background)

	time.Sleep(20 * time.Millisecond)
	j.Abandon()

	select {
	case s := <-done:
		assert.Equal(t, Abandoned, s.Kind)
	case <-time.After(time.Second):
		t.Fatal("job did not abandon")
	}
}
