// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mxclient implements the core, transport-agnostic runtime of a
// Matrix client-server connection: login, the long-poll sync loop,
// per-room state, and the cache that lets a session resume without a
// full initial sync.
package mxclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/job"
	"go.mxclient.dev/mxclient/room"
	"go.mxclient.dev/mxclient/signal"
	"go.mxclient.dev/mxclient/statecache"
	"go.mxclient.dev/mxclient/syncdata"
	"go.mxclient.dev/mxclient/syncengine"
	"go.mxclient.dev/mxclient/user"
)

// State is the coarse connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// KeyUploader is the single hook point for end-to-end encryption key
// upload. The core runtime never implements E2EE itself; if set, it is
// invoked once, best-effort, right after a successful login.
type KeyUploader interface {
	UploadKeys(ctx context.Context, conn *Connection) error
}

// LoginError is the payload of the login_error signal.
type LoginError struct {
	Message string
	Details map[string]any
}

// ResolveError is the payload of the resolve_error signal.
type ResolveError struct {
	Domain  string
	Message string
}

// DirectChatsChange is the payload of direct_chats_list_changed.
type DirectChatsChange struct {
	Added, Removed map[id.UserID][]id.RoomID
}

// IgnoredUsersChange is the payload of ignored_users_list_changed.
type IgnoredUsersChange struct {
	Added, Removed []id.UserID
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithRoomFactory injects a custom room.Factory, e.g. to construct an
// application-defined Room subtype.
func WithRoomFactory(f room.Factory) Option {
	return func(c *Connection) { c.roomFactory = f }
}

// WithUserFactory injects a custom user.Factory.
func WithUserFactory(f user.Factory) Option {
	return func(c *Connection) { c.userFactory = f }
}

// WithLogger overrides the no-op default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Connection) { c.Log = log }
}

// WithCacheDir sets the directory save_state/load_state derive their
// path from.
func WithCacheDir(dir string) Option {
	return func(c *Connection) { c.cacheDir = dir }
}

// WithBackgroundConcurrency bounds how many background (sync,
// thumbnail) requests the default HTTP transport runs concurrently.
func WithBackgroundConcurrency(n int64) Option {
	return func(c *Connection) { c.backgroundConcurrency = n }
}

// Connection owns every Room and User for one Matrix account and drives
// its login and sync lifecycle. It is the orchestrator; the actual
// state machines live in room, job and syncengine.
type Connection struct {
	Log zerolog.Logger

	roomFactory           room.Factory
	userFactory           user.Factory
	cacheDir              string
	backgroundConcurrency int64

	mu          sync.RWMutex
	state       State
	baseURL     string
	userID      id.UserID
	deviceID    id.DeviceID
	accessToken string

	transport job.Transport
	codec     job.Codec

	Users   *user.Registry
	Rooms   *room.Manager
	Sync    *syncengine.Loop
	txnGen  *txnGenerator
	uploader KeyUploader

	directChats     map[id.UserID][]id.RoomID
	directChatsByRoom map[id.RoomID][]id.UserID
	ignoredUsers    map[id.UserID]struct{}

	syncCtx    context.Context
	syncCancel context.CancelFunc

	stateChanged            *signal.Dispatcher[State]
	loginError              *signal.Dispatcher[LoginError]
	resolveError            *signal.Dispatcher[ResolveError]
	loggedOut               *signal.Dispatcher[struct{}]
	requestFailed           *signal.Dispatcher[*job.Job]
	directChatsListChanged  *signal.Dispatcher[DirectChatsChange]
	ignoredUsersListChanged *signal.Dispatcher[IgnoredUsersChange]
	directChatAvailable     *signal.Dispatcher[*room.Room]
}

// New constructs a disconnected Connection against baseURL (may be
// empty if it will be discovered via connect_to_server's well-known
// lookup).
func New(baseURL string, opts ...Option) *Connection {
	c := &Connection{
		Log:                   zerolog.Nop(),
		baseURL:               strings.TrimRight(baseURL, "/"),
		codec:                 job.DefaultCodec{},
		backgroundConcurrency: 2,
		directChats:           make(map[id.UserID][]id.RoomID),
		directChatsByRoom:     make(map[id.RoomID][]id.UserID),
		ignoredUsers:          make(map[id.UserID]struct{}),

		stateChanged:            signal.NewDispatcher[State](),
		loginError:              signal.NewDispatcher[LoginError](),
		resolveError:            signal.NewDispatcher[ResolveError](),
		loggedOut:               signal.NewDispatcher[struct{}](),
		requestFailed:           signal.NewDispatcher[*job.Job](),
		directChatsListChanged:  signal.NewDispatcher[DirectChatsChange](),
		ignoredUsersListChanged: signal.NewDispatcher[IgnoredUsersChange](),
		directChatAvailable:     signal.NewDispatcher[*room.Room](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL != "" {
		c.transport = job.NewHTTPTransport(c.baseURL, c.backgroundConcurrency)
	}
	c.Users = user.NewRegistryWithFactory(c.userFactory)
	c.txnGen = newTxnGenerator()
	return c
}

func (c *Connection) OnStateChanged(h func(State)) signal.Token { return c.stateChanged.Subscribe(h) }
func (c *Connection) OnLoginError(h func(LoginError)) signal.Token { return c.loginError.Subscribe(h) }
func (c *Connection) OnResolveError(h func(ResolveError)) signal.Token {
	return c.resolveError.Subscribe(h)
}
func (c *Connection) OnLoggedOut(h func(struct{})) signal.Token { return c.loggedOut.Subscribe(h) }
func (c *Connection) OnRequestFailed(h func(*job.Job)) signal.Token {
	return c.requestFailed.Subscribe(h)
}
func (c *Connection) OnDirectChatsListChanged(h func(DirectChatsChange)) signal.Token {
	return c.directChatsListChanged.Subscribe(h)
}
func (c *Connection) OnIgnoredUsersListChanged(h func(IgnoredUsersChange)) signal.Token {
	return c.ignoredUsersListChanged.Subscribe(h)
}
func (c *Connection) OnDirectChatAvailable(h func(*room.Room)) signal.Token {
	return c.directChatAvailable.Subscribe(h)
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	c.mu.Unlock()
	if old != s {
		c.stateChanged.Emit(s)
	}
}

func (c *Connection) LocalUserID() id.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Connection) SetKeyUploader(u KeyUploader) { c.uploader = u }

// connect_to_server. userOrID may be a bare localpart (requires
// baseURL already set) or a full @user:domain MXID (triggers
// well-known discovery if baseURL is empty).
func (c *Connection) ConnectToServer(ctx context.Context, userOrID, password, deviceName string, deviceID id.DeviceID) {
	c.setState(Connecting)

	if c.baseURL == "" {
		domain := id.UserID(userOrID).Domain()
		if domain == "" {
			if idx := strings.IndexByte(userOrID, ':'); idx >= 0 {
				domain = userOrID[idx+1:]
			}
		}
		if domain == "" {
			c.fail(ResolveError{Domain: domain, Message: "no homeserver base URL and no domain to discover from"})
			return
		}
		base, err := DiscoverHomeserver(ctx, domain)
		if err != nil {
			c.fail(ResolveError{Domain: domain, Message: err.Error()})
			return
		}
		c.mu.Lock()
		c.baseURL = base
		c.transport = job.NewHTTPTransport(base, c.backgroundConcurrency)
		c.mu.Unlock()
	}

	j := c.newLoginJob(userOrID, password, deviceName, deviceID)
	var resp respLogin
	j.ParseSuccess = func(body []byte, codec job.Codec) error { return codec.Decode(body, &resp) }
	done := make(chan job.Status, 1)
	j.OnResult(func(s job.Status) { done <- s })
	j.Start(ctx, c.transport, job.Foreground)

	go func() {
		status := <-done
		if status.State != job.Success {
			c.loginError.Emit(LoginError{Message: status.Message, Details: status.Details})
			c.setState(Failed)
			return
		}
		c.onLoginSuccess(ctx, resp.UserID, resp.DeviceID, resp.AccessToken)
	}()
}

// ConnectWithToken implements connect_with_token: skips password login
// entirely.
func (c *Connection) ConnectWithToken(ctx context.Context, userID id.UserID, accessToken string, deviceID id.DeviceID) {
	if c.baseURL == "" {
		c.fail(ResolveError{Domain: userID.Domain(), Message: "no homeserver base URL set"})
		return
	}
	c.setState(Connecting)
	c.onLoginSuccess(ctx, userID, deviceID, accessToken)
}

func (c *Connection) fail(re ResolveError) {
	c.resolveError.Emit(re)
	c.setState(Failed)
}

func (c *Connection) onLoginSuccess(ctx context.Context, userID id.UserID, deviceID id.DeviceID, accessToken string) {
	c.mu.Lock()
	c.userID = userID
	c.deviceID = deviceID
	c.accessToken = accessToken
	c.Rooms = room.NewManager(userID, c.Users, c.roomFactory)
	c.Sync = syncengine.New(c.transport, c.AccessToken, c.Rooms, c)
	c.Sync.OnSyncError(func(job.Status) {
		if c.State() == Connected {
			c.setState(Reconnecting)
		}
	})
	c.Sync.OnSynced(func(*syncdata.Data) {
		if c.State() == Reconnecting {
			c.setState(Connected)
		}
	})
	c.mu.Unlock()

	c.setState(Connected)

	if c.uploader != nil {
		go func() {
			if err := c.uploader.UploadKeys(ctx, c); err != nil {
				c.Log.Warn().Err(err).Msg("key upload failed")
			}
		}()
	}

	c.loadCache()
	c.startSync(ctx)
}

func (c *Connection) startSync(ctx context.Context) {
	c.mu.Lock()
	c.syncCtx, c.syncCancel = context.WithCancel(ctx)
	syncCtx := c.syncCtx
	c.mu.Unlock()
	go c.Sync.Start(syncCtx)
}

// Logout abandons the sync loop, issues a LogoutJob, then emits
// logged_out; the connection remains valid for a subsequent
// ConnectToServer or ConnectWithToken call.
func (c *Connection) Logout(ctx context.Context) {
	c.mu.Lock()
	cancel := c.syncCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if c.Sync != nil {
		c.Sync.Stop()
	}

	j := c.newLogoutJob()
	done := make(chan job.Status, 1)
	j.OnResult(func(s job.Status) { done <- s })
	j.Start(ctx, c.transport, job.Foreground)
	<-done

	c.setState(Disconnected)
	c.loggedOut.Emit(struct{}{})
}

// ---- account-data overlays ----

// ApplyAccountData folds the global sync account_data block into the
// direct-chat and ignored-user overlays. It implements
// syncengine.AccountDataApplier.
func (c *Connection) ApplyAccountData(events []*event.Event) {
	for _, evt := range events {
		switch evt.Type.Type {
		case event.AccountDataDirectChats.Type:
			if content, ok := evt.Content.(*event.DirectChatsEventContent); ok {
				c.mergeDirectChats(map[id.UserID][]id.RoomID(*content))
			}
		case event.AccountDataIgnoredUserList.Type:
			if content, ok := evt.Content.(*event.IgnoredUserListEventContent); ok {
				ids := make([]id.UserID, 0, len(content.IgnoredUsers))
				for u := range content.IgnoredUsers {
					ids = append(ids, u)
				}
				c.mergeIgnoredUsers(ids)
			}
		}
	}
}

// mergeDirectChats reconciles the local direct-chat map against remote,
// the full m.direct account-data snapshot. m.direct is full-replacement
// on the wire, so a user or room missing from remote was actively
// dropped and must be removed locally, not just left stale.
func (c *Connection) mergeDirectChats(remote map[id.UserID][]id.RoomID) {
	c.mu.Lock()
	added := make(map[id.UserID][]id.RoomID)
	for u, rooms := range remote {
		existing := c.directChats[u]
		var newRooms []id.RoomID
		for _, r := range rooms {
			if !containsRoomID(existing, r) {
				newRooms = append(newRooms, r)
			}
		}
		if len(newRooms) > 0 {
			added[u] = newRooms
			c.directChats[u] = append(existing, newRooms...)
			for _, r := range newRooms {
				c.directChatsByRoom[r] = append(c.directChatsByRoom[r], u)
			}
		}
	}

	removed := make(map[id.UserID][]id.RoomID)
	for u, existing := range c.directChats {
		remaining := remote[u]
		var dropped, kept []id.RoomID
		for _, r := range existing {
			if containsRoomID(remaining, r) {
				kept = append(kept, r)
			} else {
				dropped = append(dropped, r)
			}
		}
		if len(dropped) == 0 {
			continue
		}
		removed[u] = dropped
		if len(kept) > 0 {
			c.directChats[u] = kept
		} else {
			delete(c.directChats, u)
		}
		for _, r := range dropped {
			c.directChatsByRoom[r] = removeUserID(c.directChatsByRoom[r], u)
			if len(c.directChatsByRoom[r]) == 0 {
				delete(c.directChatsByRoom, r)
			}
		}
	}
	c.mu.Unlock()
	if len(added) > 0 || len(removed) > 0 {
		c.directChatsListChanged.Emit(DirectChatsChange{Added: added, Removed: removed})
	}
}

// mergeIgnoredUsers reconciles the local ignored-user set against
// remote, the full m.ignored_user_list account-data snapshot: a locally
// held user absent from remote has been unignored and is removed.
func (c *Connection) mergeIgnoredUsers(remote []id.UserID) {
	c.mu.Lock()
	remoteSet := make(map[id.UserID]struct{}, len(remote))
	var added []id.UserID
	for _, u := range remote {
		remoteSet[u] = struct{}{}
		if _, ok := c.ignoredUsers[u]; !ok {
			c.ignoredUsers[u] = struct{}{}
			added = append(added, u)
		}
	}
	var removed []id.UserID
	for u := range c.ignoredUsers {
		if _, ok := remoteSet[u]; !ok {
			removed = append(removed, u)
		}
	}
	for _, u := range removed {
		delete(c.ignoredUsers, u)
	}
	c.mu.Unlock()
	if len(added) > 0 || len(removed) > 0 {
		c.ignoredUsersListChanged.Emit(IgnoredUsersChange{Added: added, Removed: removed})
	}
}

func containsRoomID(list []id.RoomID, target id.RoomID) bool {
	for _, r := range list {
		if r == target {
			return true
		}
	}
	return false
}

func removeUserID(list []id.UserID, target id.UserID) []id.UserID {
	out := list[:0]
	for _, u := range list {
		if u != target {
			out = append(out, u)
		}
	}
	return out
}

// IsDirectChatWith reports whether roomID is recorded as a direct chat
// with user.
func (c *Connection) IsDirectChatWith(user id.UserID, roomID id.RoomID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return containsRoomID(c.directChats[user], roomID)
}

// RequestDirectChat implements request_direct_chat: reuses a joined
// direct chat with user if one exists, otherwise creates one.
func (c *Connection) RequestDirectChat(ctx context.Context, target id.UserID) {
	c.mu.RLock()
	existingRooms := append([]id.RoomID(nil), c.directChats[target]...)
	c.mu.RUnlock()

	for _, roomID := range existingRooms {
		if r, ok := c.Rooms.Room(roomID); ok && r.JoinState() == room.Join {
			c.announceDirectChatAvailable(r)
			return
		}
	}

	j := c.newCreateRoomJob(target)
	var resp respCreateRoom
	j.ParseSuccess = func(body []byte, codec job.Codec) error { return codec.Decode(body, &resp) }
	j.OnSuccess(func(job.Status) {
		c.mu.Lock()
		c.directChats[target] = append(c.directChats[target], resp.RoomID)
		c.directChatsByRoom[resp.RoomID] = append(c.directChatsByRoom[resp.RoomID], target)
		c.mu.Unlock()
		c.directChatsListChanged.Emit(DirectChatsChange{Added: map[id.UserID][]id.RoomID{target: {resp.RoomID}}})

		r := c.Rooms.ApplyJoin(resp.RoomID)
		c.announceDirectChatAvailable(r)
	})
	j.Start(ctx, c.transport, job.Foreground)
}

// announceDirectChatAvailable emits direct_chat_available once r's
// state has actually synced, so subscribers never observe an empty,
// nameless, memberless room advertised as ready. If the state has
// already loaded (e.g. an existing joined room), it fires immediately.
func (c *Connection) announceDirectChatAvailable(r *room.Room) {
	if r.HasLoadedRoomState() {
		c.directChatAvailable.Emit(r)
		return
	}
	r.OnLoadedRoomState(func(struct{}) {
		c.directChatAvailable.Emit(r)
	})
}

// ---- forget_room ----

// ForgetRoom issues /leave (if still a member) then /forget, and only
// removes the local Room object once both have succeeded.
func (c *Connection) ForgetRoom(ctx context.Context, roomID id.RoomID) {
	r, ok := c.Rooms.Room(roomID)
	if !ok {
		return
	}
	leaveThenForget := func() {
		j := c.newForgetJob(roomID)
		j.OnSuccess(func(job.Status) { c.Rooms.Forget(roomID) })
		j.Start(ctx, c.transport, job.Foreground)
	}
	if r.JoinState() == room.Join {
		leave := c.newLeaveJob(roomID)
		leave.OnSuccess(func(job.Status) { leaveThenForget() })
		leave.Start(ctx, c.transport, job.Foreground)
		return
	}
	leaveThenForget()
}

// ---- cache persistence ----

func (c *Connection) cachePath() string {
	dir := c.cacheDir
	if dir == "" {
		dir = "."
	}
	return statecache.DefaultPath(dir, c.LocalUserID())
}

// SaveState writes the durable slice of connection state to the cache
// path. Timelines are never persisted.
func (c *Connection) SaveState() error {
	c.mu.RLock()
	snap := statecache.Snapshot{
		NextBatch:    c.Sync.Since(),
		DirectChats:  cloneRoomMap(c.directChats),
		IgnoredUsers: keysOf(c.ignoredUsers),
	}
	c.mu.RUnlock()

	for _, r := range c.Rooms.Rooms() {
		snap.Rooms = append(snap.Rooms, statecache.RoomSnapshot{
			ID:        r.ID,
			JoinState: r.JoinState().String(),
			State:     encodeStateEvents(r.StateEvents()),
		})
	}
	return statecache.Save(c.cachePath(), snap)
}

// loadCache restores next_batch, the room/account-data overlays, and
// each room's state events from the cache; a missing or unreadable
// cache is a no-op, leaving the connection to continue with an empty
// state and resync everything from the homeserver.
func (c *Connection) loadCache() {
	snap, err := statecache.Load(c.cachePath())
	if err != nil {
		c.Log.Warn().Err(err).Msg("ignoring unreadable state cache")
		return
	}
	if snap.NextBatch != "" {
		c.Sync.SetSince(snap.NextBatch)
	}
	c.mu.Lock()
	for u, rooms := range snap.DirectChats {
		c.directChats[u] = rooms
		for _, r := range rooms {
			c.directChatsByRoom[r] = append(c.directChatsByRoom[r], u)
		}
	}
	for _, u := range snap.IgnoredUsers {
		c.ignoredUsers[u] = struct{}{}
	}
	c.mu.Unlock()
	for _, rs := range snap.Rooms {
		var r *room.Room
		switch rs.JoinState {
		case room.Join.String():
			r = c.Rooms.ApplyJoin(rs.ID)
		case room.Leave.String():
			r = c.Rooms.ApplyLeave(rs.ID)
		case room.Invite.String():
			r = c.Rooms.ApplyInvite(rs.ID)
		}
		if r != nil {
			r.ApplyState(decodeStateEvents(rs.State))
		}
	}
}

func encodeStateEvents(events []*event.Event) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(events))
	for _, evt := range events {
		raw, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func decodeStateEvents(raw []json.RawMessage) []*event.Event {
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

func cloneRoomMap(m map[id.UserID][]id.RoomID) map[id.UserID][]id.RoomID {
	out := make(map[id.UserID][]id.RoomID, len(m))
	for k, v := range m {
		out[k] = append([]id.RoomID(nil), v...)
	}
	return out
}

func keysOf(m map[id.UserID]struct{}) []id.UserID {
	out := make([]id.UserID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---- room.Host implementation ----

func (c *Connection) SubmitSend(ctx context.Context, roomID id.RoomID, eventType event.Type, content any) *job.Job {
	j := c.newSendJob(roomID, eventType, content)
	j.OnFailure(func(job.Status) { c.requestFailed.Emit(j) })
	j.Start(ctx, c.transport, job.Foreground)
	return j
}

func (c *Connection) SubmitReceipt(ctx context.Context, roomID id.RoomID, eventID id.EventID) *job.Job {
	j := c.newReceiptJob(roomID, eventID)
	j.Start(ctx, c.transport, job.Background)
	return j
}

func (c *Connection) SubmitPreviousContent(ctx context.Context, roomID id.RoomID, from id.BatchToken, limit int) *job.Job {
	j := c.newMessagesJob(roomID, from, limit)
	j.OnFailure(func(job.Status) { c.requestFailed.Emit(j) })
	j.Start(ctx, c.transport, job.Background)
	return j
}

var _ fmt.Stringer = State(0)
