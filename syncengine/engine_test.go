// Copyright (c) 2024 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/job"
	"go.mxclient.dev/mxclient/room"
	"go.mxclient.dev/mxclient/user"
)

type scriptedSyncTransport struct {
	mu        sync.Mutex
	bodies    [][]byte
	calls     int
	afterLast chan struct{}
}

func (t *scriptedSyncTransport) Do(ctx context.Context, req job.Request, priority job.Priority) (job.Response, error) {
	t.mu.Lock()
	i := t.calls
	t.calls++
	t.mu.Unlock()
	if i >= len(t.bodies) {
		if t.afterLast != nil {
			close(t.afterLast)
			t.afterLast = nil
		}
		<-ctx.Done()
		return job.Response{}, ctx.Err()
	}
	return job.Response{StatusCode: 200, Body: t.bodies[i]}, nil
}

type noopAccountData struct{ applied [][]*event.Event }

func (n *noopAccountData) ApplyAccountData(events []*event.Event) { n.applied = append(n.applied, events) }

func TestLoop_InitialSyncCreatesJoinedRoom(t *testing.T) {
	body := []byte(`{
		"next_batch": "s1",
		"rooms": {
			"join": {
				"!a:s": {
					"state": {"events": []},
					"timeline": {"events": [
						{"type":"m.room.message","event_id":"$e1","sender":"@u:s","content":{"body":"hi","msgtype":"m.text"}}
					]},
					"ephemeral": {"events": []},
					"account_data": {"events": []}
				}
			}
		},
		"account_data": {"events": []}
	}`)
	transport := &scriptedSyncTransport{bodies: [][]byte{body}, afterLast: make(chan struct{})}
	manager := room.NewManager("@self:s", user.NewRegistry(), nil)
	accountData := &noopAccountData{}
	loop := New(transport, func() string { return "tok" }, manager, accountData)
	loop.Timeout = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Start(ctx)

	select {
	case <-transport.afterLast:
	case <-time.After(2 * time.Second):
		t.Fatal("sync loop never reached the second (blocking) request")
	}

	r, ok := manager.Room("!a:s")
	require.True(t, ok)
	assert.Equal(t, room.Join, r.JoinState())
	assert.Equal(t, 1, r.Timeline().Len())

	item, ok := r.Timeline().FindByIndex(r.Timeline().MinIndex())
	require.True(t, ok)
	assert.Equal(t, id.EventID("$e1"), item.Event.ID)
	assert.Equal(t, "s1", string(loop.Since()))
}

func TestLoop_FullyReadTargetingSameBatchTimelineSuppressesUnread(t *testing.T) {
	body := []byte(`{
		"next_batch": "s1",
		"rooms": {
			"join": {
				"!a:s": {
					"state": {"events": []},
					"timeline": {"events": [
						{"type":"m.room.message","event_id":"$e1","sender":"@u:s","content":{"body":"one","msgtype":"m.text"}},
						{"type":"m.room.message","event_id":"$e2","sender":"@u:s","content":{"body":"two","msgtype":"m.text"}}
					]},
					"ephemeral": {"events": []},
					"account_data": {"events": [
						{"type":"m.fully_read","content":{"event_id":"$e1"}}
					]}
				}
			}
		},
		"account_data": {"events": []}
	}`)
	transport := &scriptedSyncTransport{bodies: [][]byte{body}, afterLast: make(chan struct{})}
	manager := room.NewManager("@self:s", user.NewRegistry(), nil)
	loop := New(transport, func() string { return "tok" }, manager, &noopAccountData{})
	loop.Timeout = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Start(ctx)

	select {
	case <-transport.afterLast:
	case <-time.After(2 * time.Second):
		t.Fatal("sync loop never reached the second (blocking) request")
	}

	r, ok := manager.Room("!a:s")
	require.True(t, ok)
	marker, hasMarker := r.ReadMarker("@self:s")
	require.True(t, hasMarker)
	assert.Equal(t, id.EventID("$e1"), marker)
	assert.Equal(t, 1, r.UnreadCounter(), "the event the same batch's fully_read points at should not count as unread")
}

type malformedSyncTransport struct {
	mu    sync.Mutex
	calls int
}

func (t *malformedSyncTransport) Do(ctx context.Context, req job.Request, priority job.Priority) (job.Response, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return job.Response{StatusCode: 200, Body: []byte(`{"not_next_batch": true}`)}, nil
}

func (t *malformedSyncTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func TestLoop_BackoffOnPersistentSyncFailure(t *testing.T) {
	transport := &malformedSyncTransport{}
	manager := room.NewManager("@self:s", user.NewRegistry(), nil)
	loop := New(transport, func() string { return "tok" }, manager, &noopAccountData{})
	loop.Timeout = time.Millisecond
	loop.RetryPolicy = job.RetryPolicy{Initial: 50 * time.Millisecond, Cap: time.Second, MaxRetries: 7}

	var errs []job.Status
	var mu sync.Mutex
	loop.OnSyncError(func(s job.Status) {
		mu.Lock()
		errs = append(errs, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Start(ctx)

	// Give the loop enough time for a handful of iterations if it were
	// spinning with no backoff, but not enough for more than two or
	// three if the 50ms initial backoff is actually applied.
	time.Sleep(180 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	calls := transport.callCount()
	assert.LessOrEqual(t, calls, 5, "sync loop should back off between failures instead of busy-looping")

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, errs)
}
