// Copyright (c) 2024 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package syncengine implements the long-poll /sync loop: it starts a
// background Job per iteration, demultiplexes the parsed response into
// per-room deltas in a fixed order, and hands off to a room.Manager. It
// never touches the network itself; a job.Transport is supplied by the
// caller.
package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/job"
	"go.mxclient.dev/mxclient/room"
	"go.mxclient.dev/mxclient/signal"
	"go.mxclient.dev/mxclient/syncdata"
)

// AccountDataApplier lets the caller (Connection) fold the global,
// connection-wide account_data block (direct chats, ignored users,
// tags) into its own state; syncengine has no opinion on that shape.
type AccountDataApplier interface {
	ApplyAccountData(events []*event.Event)
}

// Loop drives the long-poll /sync cycle.
type Loop struct {
	Transport   job.Transport
	AccessToken func() string
	Manager     *room.Manager
	AccountData AccountDataApplier
	Log         zerolog.Logger
	RetryPolicy job.RetryPolicy
	Timeout     time.Duration
	Filter      string

	mu      sync.Mutex
	since   id.BatchToken
	running bool
	stop    chan struct{}

	syncError *signal.Dispatcher[job.Status]
	synced    *signal.Dispatcher[*syncdata.Data]
}

// New constructs a Loop with default retry policy and a 30s
// long-poll timeout.
func New(transport job.Transport, accessToken func() string, manager *room.Manager, accountData AccountDataApplier) *Loop {
	return &Loop{
		Transport:   transport,
		AccessToken: accessToken,
		Manager:     manager,
		AccountData: accountData,
		Log:         zerolog.Nop(),
		RetryPolicy: job.DefaultRetryPolicy,
		Timeout:     30 * time.Second,

		syncError: signal.NewDispatcher[job.Status](),
		synced:    signal.NewDispatcher[*syncdata.Data](),
	}
}

func (l *Loop) OnSyncError(h func(job.Status)) signal.Token   { return l.syncError.Subscribe(h) }
func (l *Loop) OnSynced(h func(*syncdata.Data)) signal.Token  { return l.synced.Subscribe(h) }

// SetSince seeds the loop's next_batch cursor, e.g. from a restored
// cache, so the first request resumes rather than requesting an initial
// snapshot.
func (l *Loop) SetSince(tok id.BatchToken) {
	l.mu.Lock()
	l.since = tok
	l.mu.Unlock()
}

// Since returns the cursor the next request will send, useful for
// persisting it to the state cache after each successful sync.
func (l *Loop) Since() id.BatchToken {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since
}

// Running reports whether Start's goroutine is currently looping.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start runs the long-poll loop until Stop is called, the context is
// canceled, or a sync job comes back Abandoned. It blocks; callers run
// it in its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	l.running = true
	l.stop = make(chan struct{})
	stop := l.stop
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		data, status := l.runOnce(ctx)
		if status.Err() != nil {
			if status.Kind == job.Abandoned {
				return
			}
			l.Log.Warn().Err(status).Msg("sync failed")
			l.syncError.Emit(status)
			failures++
			if l.wait(ctx, stop, l.RetryPolicy.Backoff(failures)) {
				return
			}
			continue
		}
		if data == nil {
			l.syncError.Emit(job.Failure(job.IncorrectResponseError, "sync response missing next_batch", nil))
			failures++
			if l.wait(ctx, stop, l.RetryPolicy.Backoff(failures)) {
				return
			}
			continue
		}
		failures = 0

		l.dispatch(data)

		l.mu.Lock()
		l.since = id.BatchToken(data.NextBatch)
		l.mu.Unlock()

		l.synced.Emit(data)
	}
}

// wait blocks for d, or until ctx is canceled or stop is closed,
// whichever comes first. It reports whether the loop should exit.
func (l *Loop) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	case <-timer.C:
		return false
	}
}

// Stop requests the loop exit after its in-flight request completes.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running && l.stop != nil {
		close(l.stop)
	}
}

func (l *Loop) runOnce(ctx context.Context) (*syncdata.Data, job.Status) {
	l.mu.Lock()
	since := l.since
	l.mu.Unlock()

	query := map[string]string{
		"timeout": fmt.Sprintf("%d", l.Timeout.Milliseconds()),
	}
	if since != "" {
		query["since"] = string(since)
	}
	if l.Filter != "" {
		query["filter"] = l.Filter
	}

	j := job.New(job.GET, "/_matrix/client/r0/sync")
	j.Request.Query = query
	j.Request.AccessToken = l.AccessToken()
	j.RetryPolicy = l.RetryPolicy
	j.Log = l.Log

	var parsed syncdata.Data
	j.ParseSuccess = func(body []byte, codec job.Codec) error {
		if err := codec.Decode(body, &parsed); err != nil {
			return err
		}
		if parsed.NextBatch == "" {
			return fmt.Errorf("sync response missing next_batch")
		}
		return nil
	}

	done := make(chan job.Status, 1)
	j.OnResult(func(s job.Status) { done <- s })
	j.Start(ctx, l.Transport, job.Background)

	status := <-done
	if status.State != job.Success {
		return nil, status
	}
	return &parsed, status
}

// dispatch applies one parsed sync response in a fixed order: global
// account data, then invites, then joins, then leaves. next_batch
// itself is committed by the caller only after this returns.
func (l *Loop) dispatch(data *syncdata.Data) {
	if l.AccountData != nil {
		l.AccountData.ApplyAccountData(decodeAll(data.AccountData.Events))
	}

	for roomID, rd := range data.Rooms.Invite {
		r := l.Manager.ApplyInvite(roomID)
		r.ApplyState(decodeAll(rd.InviteState.Events))
	}

	for roomID, rd := range data.Rooms.Join {
		r := l.Manager.ApplyJoin(roomID)
		r.ApplyState(decodeAll(rd.State.Events))
		notif := room.UnreadNotifications{
			NotificationCount: rd.UnreadNotifications.NotificationCount,
			HighlightCount:    rd.UnreadNotifications.HighlightCount,
		}
		// Timeline before account data: m.fully_read can reference an
		// event delivered in this same block's timeline[], and
		// ApplyAccountData resolves that event id against the timeline
		// buffer, so the events it needs to find must already be in it.
		r.ApplyNewTimeline(decodeAll(rd.Timeline.Events), notif)
		r.ApplyAccountData(decodeAll(rd.AccountData.Events))
		r.ApplyEphemeral(decodeAll(rd.Ephemeral.Events))
		if rd.Timeline.PrevBatch != "" {
			r.SetPrevBatch(rd.Timeline.PrevBatch)
		}
	}

	for roomID, rd := range data.Rooms.Leave {
		r := l.Manager.ApplyLeave(roomID)
		r.ApplyState(decodeAll(rd.State.Events))
		r.ApplyNewTimeline(decodeAll(rd.Timeline.Events), room.UnreadNotifications{})
	}
}

func decodeAll(raw []json.RawMessage) []*event.Event {
	out := make([]*event.Event, 0, len(raw))
	for _, r := range raw {
		evt, err := event.Decode(r)
		if err != nil {
			continue
		}
		out = append(out, evt)
	}
	return out
}
