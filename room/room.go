// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package room implements the per-room state machine: membership, the
// timeline, read markers, unread/highlight counters, and the join-state
// lifecycle a room object moves through as invites turn into
// memberships and memberships end.
package room

import (
	"context"
	"fmt"
	"sync"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/format"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/job"
	"go.mxclient.dev/mxclient/signal"
	"go.mxclient.dev/mxclient/timeline"
	"go.mxclient.dev/mxclient/user"
)

// maxNamedMembers is the number of non-self member names folded into a
// synthesized room name before it switches to "and N others".
const maxNamedMembers = 3

// Member is a room's view of one of its participants: a borrowed User
// pointer plus the membership state that put them there.
type Member struct {
	User       *user.User
	Membership event.Membership
}

// UnreadNotifications mirrors the server-computed counters delivered
// alongside a sync room update. HighlightCount replaces the room's
// highlight counter on each batch; NotificationCount is stored but not
// used, since the unread counter is always computed locally.
type UnreadNotifications struct {
	NotificationCount int
	HighlightCount    int
}

// JoinStateChange is the payload of the join_state_changed signal.
type JoinStateChange struct {
	Old, New JoinState
}

// MemberRename is the payload of the member_renamed signal.
type MemberRename struct {
	User    *user.User
	OldName string
}

// ReadMarkerMove is the payload of the read_marker_moved signal.
type ReadMarkerMove struct {
	User          id.UserID
	EventID       id.EventID
	UnreadDropped int
}

// Host is the callback surface a Room uses to perform network actions
// (post a message, post a receipt, backfill) without owning a
// dependency on the connection that owns it. Implemented by the
// top-level Connection; kept as an interface here so this package never
// imports the one that imports it.
type Host interface {
	SubmitSend(ctx context.Context, roomID id.RoomID, eventType event.Type, content any) *job.Job
	SubmitReceipt(ctx context.Context, roomID id.RoomID, eventID id.EventID) *job.Job
	SubmitPreviousContent(ctx context.Context, roomID id.RoomID, from id.BatchToken, limit int) *job.Job
	LocalUserID() id.UserID
}

// Room is one join-state instance of a Matrix room: an Invite object is
// always distinct from the Join/Leave object sharing its id, per
// ownership invariant.
type Room struct {
	ID          id.RoomID
	localUserID id.UserID
	users       *user.Registry

	mu             sync.RWMutex
	joinState      JoinState
	name           string
	canonicalAlias id.RoomAlias
	aliases        []id.RoomAlias
	topic          string
	displayName    string

	members     map[id.UserID]*Member
	membersLeft map[id.UserID]*Member
	state       map[event.StateIdentity]*event.Event
	stateLoaded bool

	tl                *timeline.Buffer
	unreadCounter     int
	highlightCounter  int
	readMarkers       map[id.UserID]id.EventID
	readMarkerIndex   map[id.UserID]timeline.Index
	typingUsers       map[id.UserID]struct{}
	prevBatch         id.BatchToken
	lastNotifications UnreadNotifications

	joinStateChanged             *signal.Dispatcher[JoinStateChange]
	namesChanged                 *signal.Dispatcher[struct{}]
	topicChanged                 *signal.Dispatcher[string]
	userAdded                    *signal.Dispatcher[*user.User]
	userRemoved                  *signal.Dispatcher[*user.User]
	memberRenamed                *signal.Dispatcher[MemberRename]
	aboutToAddNewMessages        *signal.Dispatcher[[]*event.Event]
	addedMessages                *signal.Dispatcher[[]*timeline.Item]
	aboutToAddHistoricalMessages *signal.Dispatcher[[]*event.Event]
	typingChanged                *signal.Dispatcher[[]id.UserID]
	lastReadEventChanged         *signal.Dispatcher[id.UserID]
	displayNameChanged           *signal.Dispatcher[string]
	readMarkerMoved              *signal.Dispatcher[ReadMarkerMove]
	loadedRoomState              *signal.Dispatcher[struct{}]
}

// New constructs an empty Room. localUserID is the account whose
// self-authored events are excluded from unread accounting and whose
// read marker is tracked specially.
func New(roomID id.RoomID, localUserID id.UserID, users *user.Registry, joinState JoinState) *Room {
	return &Room{
		ID:          roomID,
		localUserID: localUserID,
		users:       users,
		joinState:   joinState,

		members:     make(map[id.UserID]*Member),
		membersLeft: make(map[id.UserID]*Member),
		state:       make(map[event.StateIdentity]*event.Event),

		tl:              timeline.New(),
		readMarkers:     make(map[id.UserID]id.EventID),
		readMarkerIndex: make(map[id.UserID]timeline.Index),
		typingUsers:     make(map[id.UserID]struct{}),

		joinStateChanged:             signal.NewDispatcher[JoinStateChange](),
		namesChanged:                 signal.NewDispatcher[struct{}](),
		topicChanged:                 signal.NewDispatcher[string](),
		userAdded:                    signal.NewDispatcher[*user.User](),
		userRemoved:                  signal.NewDispatcher[*user.User](),
		memberRenamed:                signal.NewDispatcher[MemberRename](),
		aboutToAddNewMessages:        signal.NewDispatcher[[]*event.Event](),
		addedMessages:                signal.NewDispatcher[[]*timeline.Item](),
		aboutToAddHistoricalMessages: signal.NewDispatcher[[]*event.Event](),
		typingChanged:                signal.NewDispatcher[[]id.UserID](),
		lastReadEventChanged:         signal.NewDispatcher[id.UserID](),
		displayNameChanged:           signal.NewDispatcher[string](),
		readMarkerMoved:              signal.NewDispatcher[ReadMarkerMove](),
		loadedRoomState:              signal.NewDispatcher[struct{}](),
	}
}

func (r *Room) OnJoinStateChanged(h func(JoinStateChange)) signal.Token { return r.joinStateChanged.Subscribe(h) }
func (r *Room) OnNamesChanged(h func(struct{})) signal.Token            { return r.namesChanged.Subscribe(h) }
func (r *Room) OnTopicChanged(h func(string)) signal.Token              { return r.topicChanged.Subscribe(h) }
func (r *Room) OnUserAdded(h func(*user.User)) signal.Token             { return r.userAdded.Subscribe(h) }
func (r *Room) OnUserRemoved(h func(*user.User)) signal.Token           { return r.userRemoved.Subscribe(h) }
func (r *Room) OnMemberRenamed(h func(MemberRename)) signal.Token       { return r.memberRenamed.Subscribe(h) }
func (r *Room) OnAboutToAddNewMessages(h func([]*event.Event)) signal.Token {
	return r.aboutToAddNewMessages.Subscribe(h)
}
func (r *Room) OnAddedMessages(h func([]*timeline.Item)) signal.Token {
	return r.addedMessages.Subscribe(h)
}
func (r *Room) OnAboutToAddHistoricalMessages(h func([]*event.Event)) signal.Token {
	return r.aboutToAddHistoricalMessages.Subscribe(h)
}
func (r *Room) OnTypingChanged(h func([]id.UserID)) signal.Token { return r.typingChanged.Subscribe(h) }
func (r *Room) OnLastReadEventChanged(h func(id.UserID)) signal.Token {
	return r.lastReadEventChanged.Subscribe(h)
}
func (r *Room) OnDisplayNameChanged(h func(string)) signal.Token { return r.displayNameChanged.Subscribe(h) }
func (r *Room) OnReadMarkerMoved(h func(ReadMarkerMove)) signal.Token {
	return r.readMarkerMoved.Subscribe(h)
}

// OnLoadedRoomState registers h to fire once, the first time the room's
// state has been applied (its first sync response or a restored cache
// snapshot). Useful for waiting until a freshly-created room actually
// has a name and member list before treating it as usable.
func (r *Room) OnLoadedRoomState(h func(struct{})) signal.Token {
	return r.loadedRoomState.SubscribeOnce(h)
}

// HasLoadedRoomState reports whether the room's state has been applied
// at least once.
func (r *Room) HasLoadedRoomState() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLoaded
}

func (r *Room) JoinState() JoinState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joinState
}

// setJoinState is called by the Manager while it holds no lock on r;
// it emits join_state_changed itself. Room.SetJoinState is not exported
// standalone because the Manager, not the Room, decides object identity
// transitions.
func (r *Room) setJoinState(newState JoinState) {
	r.mu.Lock()
	old := r.joinState
	r.joinState = newState
	r.mu.Unlock()
	if old != newState {
		r.joinStateChanged.Emit(JoinStateChange{Old: old, New: newState})
	}
}

func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *Room) Topic() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topic
}

func (r *Room) Aliases() []id.RoomAlias {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]id.RoomAlias, len(r.aliases))
	copy(out, r.aliases)
	return out
}

func (r *Room) Members() map[id.UserID]*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[id.UserID]*Member, len(r.members))
	for k, v := range r.members {
		out[k] = v
	}
	return out
}

func (r *Room) UnreadCounter() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unreadCounter
}

func (r *Room) HighlightCounter() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.highlightCounter
}

// HasUnreadMessages reports whether either counter is nonzero.
func (r *Room) HasUnreadMessages() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unreadCounter > 0 || r.highlightCounter > 0
}

// ResetNotificationCount clears the unread counter without touching the
// read marker, distinct from mark_messages_as_read.
func (r *Room) ResetNotificationCount() {
	r.mu.Lock()
	r.unreadCounter = 0
	r.mu.Unlock()
}

// ResetHighlightCount clears the highlight counter without touching the
// read marker.
func (r *Room) ResetHighlightCount() {
	r.mu.Lock()
	r.highlightCounter = 0
	r.mu.Unlock()
}

func (r *Room) ReadMarker(userID id.UserID) (id.EventID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eventID, ok := r.readMarkers[userID]
	return eventID, ok
}

// Timeline exposes the room's timeline buffer for read-only iteration.
func (r *Room) Timeline() *timeline.Buffer { return r.tl }

// StateEvents returns every current state event in the room, keyed by
// (type, state_key). Used by the connection's state cache to persist
// room state across restarts.
func (r *Room) StateEvents() []*event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*event.Event, 0, len(r.state))
	for _, evt := range r.state {
		out = append(out, evt)
	}
	return out
}

// ---- state event application ----

// ApplyState applies a batch of state events. State identity is
// (type, state_key); applying a state event overwrites the prior value
// at that identity, and the batch is processed in order so the final
// event for each identity wins.
func (r *Room) ApplyState(events []*event.Event) {
	for _, evt := range events {
		if evt.StateKey == nil {
			continue
		}
		r.applyOneState(evt)
	}
	r.recomputeDisplayName()

	r.mu.Lock()
	firstLoad := !r.stateLoaded
	r.stateLoaded = true
	r.mu.Unlock()
	if firstLoad {
		r.loadedRoomState.Emit(struct{}{})
	}
}

func (r *Room) applyOneState(evt *event.Event) {
	r.mu.Lock()
	r.state[evt.StateIdentity()] = evt
	r.mu.Unlock()

	switch evt.Type.Type {
	case event.StateRoomName.Type:
		if c, ok := evt.Content.(*event.RoomNameEventContent); ok {
			r.mu.Lock()
			r.name = c.Name
			r.mu.Unlock()
			r.namesChanged.Emit(struct{}{})
		}
	case event.StateCanonicalAlias.Type:
		if c, ok := evt.Content.(*event.CanonicalAliasEventContent); ok {
			r.mu.Lock()
			r.canonicalAlias = c.Alias
			r.mu.Unlock()
			r.namesChanged.Emit(struct{}{})
		}
	case event.StateAliases.Type:
		if c, ok := evt.Content.(*event.AliasesEventContent); ok {
			r.mu.Lock()
			r.aliases = append(r.aliases[:0], c.Aliases...)
			r.mu.Unlock()
			r.namesChanged.Emit(struct{}{})
		}
	case event.StateTopic.Type:
		if c, ok := evt.Content.(*event.TopicEventContent); ok {
			r.mu.Lock()
			r.topic = c.Topic
			r.mu.Unlock()
			r.topicChanged.Emit(c.Topic)
		}
	case event.StateMember.Type:
		r.applyMember(evt)
	}
}

func (r *Room) applyMember(evt *event.Event) {
	content, ok := evt.Content.(*event.MemberEventContent)
	if !ok {
		return
	}
	subject := id.UserID(evt.StateKeyOrEmpty())
	if subject == "" {
		return
	}
	u, _ := r.users.GetOrCreate(subject)

	switch {
	case content.Membership.IsInviteOrJoin():
		r.mu.Lock()
		_, existed := r.members[subject]
		r.members[subject] = &Member{User: u, Membership: content.Membership}
		delete(r.membersLeft, subject)
		r.mu.Unlock()

		oldName := u.DisplayName()
		if u.SetDisplayName(content.Displayname) && existed {
			r.memberRenamed.Emit(MemberRename{User: u, OldName: oldName})
		}
		if !existed {
			r.userAdded.Emit(u)
		}
	case content.Membership.IsLeaveOrBan():
		r.mu.Lock()
		m, existed := r.members[subject]
		if existed {
			delete(r.members, subject)
			r.membersLeft[subject] = m
		}
		r.mu.Unlock()
		if existed {
			r.userRemoved.Emit(u)
		}
	}
	r.recomputeDisplayName()
}

// ---- timeline application ----

// ApplyNewTimeline appends a forward-sync timeline batch, updating
// unread/highlight counters and mid-batch redactions.
func (r *Room) ApplyNewTimeline(events []*event.Event, notif UnreadNotifications) {
	messages, redactions := splitRedactions(events)

	r.aboutToAddNewMessages.Emit(messages)
	inserted := r.tl.AppendNew(messages)
	inserted = append(inserted, r.applyRedactionsInPlace(redactions)...)
	r.addedMessages.Emit(inserted)

	r.mu.Lock()
	marker, hasMarker := r.readMarkers[r.localUserID]
	markerIdx, hasMarkerIdx := r.readMarkerIndex[r.localUserID]
	added := 0
	for _, item := range inserted {
		if item.Event.Sender == r.localUserID {
			continue
		}
		if hasMarker && hasMarkerIdx && item.Index <= markerIdx {
			continue
		}
		added++
	}
	_ = marker
	r.unreadCounter += added
	r.highlightCounter = notif.HighlightCount
	r.lastNotifications = notif
	r.mu.Unlock()
}

// ApplyHistoricalTimeline prepends a backfill batch.
func (r *Room) ApplyHistoricalTimeline(events []*event.Event) {
	r.aboutToAddHistoricalMessages.Emit(events)
	inserted := r.tl.PrependHistorical(events)
	r.addedMessages.Emit(inserted)
}

// ApplyAccountData applies room-scoped account data; these are overlays
// outside the timeline, distinct from the connection-wide account data
// global-scope events use. Only m.fully_read is acted on, and only while
// the local user has no read marker yet: it sets the marker and, when the
// target event is in the timeline, recounts the unread counter from it.
// Other room account data, m.tag included, is ignored.
func (r *Room) ApplyAccountData(events []*event.Event) {
	for _, evt := range events {
		if evt.Type.Type == event.AccountDataFullyRead.Type {
			if c, ok := evt.Content.(*event.FullyReadEventContent); ok {
				r.mu.Lock()
				if _, hasMarker := r.readMarkers[r.localUserID]; !hasMarker {
					r.readMarkers[r.localUserID] = c.EventID
					if item, found := r.tl.FindByID(c.EventID); found {
						r.readMarkerIndex[r.localUserID] = item.Index
						unread := 0
						next := r.tl.ReverseFrom(r.tl.MaxIndex())
						for {
							it, ok := next()
							if !ok || it.Index <= item.Index {
								break
							}
							if it.Event.Sender != r.localUserID {
								unread++
							}
						}
						r.unreadCounter = unread
					}
				}
				r.mu.Unlock()
			}
		}
	}
}

// splitRedactions separates a batch into non-redaction events and
// m.room.redaction events, preserving the relative order of each group.
// Pulling redactions out lets the caller insert the rest of the batch
// into the timeline first, so a redaction that targets an event
// delivered earlier in the very same batch still finds it.
func splitRedactions(events []*event.Event) (messages, redactions []*event.Event) {
	for _, evt := range events {
		if evt.Type.Type == event.EventRedaction.Type && evt.Redacts != "" {
			redactions = append(redactions, evt)
		} else {
			messages = append(messages, evt)
		}
	}
	return messages, redactions
}

// applyRedactionsInPlace tombstones each redaction's target if it's
// already in the timeline — including a message from the same batch
// inserted just before this call. A redaction whose target hasn't
// arrived yet (and never does, or arrives in a later batch) is appended
// as an ordinary orphan timeline item instead of being dropped.
func (r *Room) applyRedactionsInPlace(redactions []*event.Event) []*timeline.Item {
	var orphans []*event.Event
	for _, evt := range redactions {
		tombstone := &event.Event{
			Type:      evt.Type,
			ID:        evt.Redacts,
			Sender:    evt.Sender,
			Timestamp: evt.Timestamp,
			Content:   &event.RedactionEventContent{Reason: "redacted"},
		}
		if r.tl.Redact(evt.Redacts, tombstone) {
			continue
		}
		orphans = append(orphans, evt)
	}
	if len(orphans) == 0 {
		return nil
	}
	return r.tl.AppendNew(orphans)
}

// ---- ephemeral application ----

func (r *Room) ApplyEphemeral(events []*event.Event) {
	for _, evt := range events {
		switch evt.Type.Type {
		case event.EphemeralEventTyping.Type:
			r.applyTyping(evt)
		case event.EphemeralEventReceipt.Type:
			r.applyReceipt(evt)
		}
	}
}

func (r *Room) applyTyping(evt *event.Event) {
	content, ok := evt.Content.(*event.TypingEventContent)
	if !ok {
		return
	}
	r.mu.Lock()
	r.typingUsers = make(map[id.UserID]struct{}, len(content.UserIDs))
	for _, u := range content.UserIDs {
		r.typingUsers[u] = struct{}{}
	}
	r.mu.Unlock()
	r.typingChanged.Emit(content.UserIDs)
}

func (r *Room) applyReceipt(evt *event.Event) {
	content, ok := evt.Content.(*event.ReceiptEventContent)
	if !ok {
		return
	}
	for eventID, receipts := range *content {
		item, found := r.tl.FindByID(eventID)
		for readerID := range receipts.Read {
			if readerID == r.localUserID {
				if !found {
					continue
				}
				r.mu.Lock()
				curIdx, hasCur := r.readMarkerIndex[r.localUserID]
				r.mu.Unlock()
				if hasCur && item.Index <= curIdx {
					continue
				}
				r.mu.Lock()
				r.readMarkers[r.localUserID] = eventID
				r.readMarkerIndex[r.localUserID] = item.Index
				r.mu.Unlock()
				r.lastReadEventChanged.Emit(readerID)
				continue
			}
			r.mu.Lock()
			r.readMarkers[readerID] = eventID
			if found {
				r.readMarkerIndex[readerID] = item.Index
			}
			r.mu.Unlock()
			r.lastReadEventChanged.Emit(readerID)
		}
	}
}

// ---- display name computation ----

func (r *Room) recomputeDisplayName() {
	r.mu.RLock()
	name, canonicalAlias, aliases := r.name, r.canonicalAlias, r.aliases
	r.mu.RUnlock()

	var computed string
	switch {
	case name != "":
		computed = name
	case canonicalAlias != "":
		computed = string(canonicalAlias)
	case len(aliases) > 0:
		computed = string(aliases[0])
	default:
		computed = r.syntheticNameFromMembers()
	}

	r.mu.Lock()
	changed := r.displayName != computed
	r.displayName = computed
	r.mu.Unlock()
	if changed {
		r.displayNameChanged.Emit(computed)
	}
}

func (r *Room) syntheticNameFromMembers() string {
	members := r.Members()
	names := make([]string, 0, len(members))
	for uid, m := range members {
		if uid == r.localUserID {
			continue
		}
		n := m.User.DisplayName()
		if n == "" {
			n = string(uid)
		}
		names = append(names, n)
	}
	if len(names) == 0 {
		return "Empty room"
	}
	shown := names
	extra := 0
	if len(names) > maxNamedMembers {
		shown = names[:maxNamedMembers]
		extra = len(names) - maxNamedMembers
	}
	joined := ""
	for i, n := range shown {
		if i > 0 {
			joined += ", "
		}
		joined += n
	}
	if extra > 0 {
		return fmt.Sprintf("%s and %d others", joined, extra)
	}
	return joined
}

// DisplayName returns the cached computed name.
func (r *Room) DisplayName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.displayName
}

// MemberName returns u's disambiguated display name within this room.
func (r *Room) MemberName(u *user.User) string {
	return RoomMemberName(u, r.Members())
}

// ---- mark-as-read ----

// MarkMessagesAsRead implements the four-step algorithm: locate the
// target event, skip backward past any trailing self-authored events,
// bail if the marker wouldn't advance, otherwise move it and post a
// best-effort m.read receipt.
func (r *Room) MarkMessagesAsRead(ctx context.Context, host Host, uptoEventID id.EventID) {
	target, ok := r.tl.FindByID(uptoEventID)
	if !ok {
		return
	}

	resolved := target
	if resolved.Event.Sender == r.localUserID {
		next := r.tl.ReverseFrom(resolved.Index - 1)
		found := false
		for {
			item, ok := next()
			if !ok {
				break
			}
			if item.Event.Sender != r.localUserID {
				resolved = item
				found = true
				break
			}
		}
		if !found {
			return
		}
	}

	r.mu.Lock()
	curIdx, hasCur := r.readMarkerIndex[r.localUserID]
	if hasCur && resolved.Index <= curIdx {
		r.mu.Unlock()
		return
	}
	dropped := 0
	if hasCur {
		next := r.tl.ReverseFrom(resolved.Index)
		for {
			item, ok := next()
			if !ok || item.Index <= curIdx {
				break
			}
			if item.Event.Sender != r.localUserID {
				dropped++
			}
		}
	} else {
		dropped = r.unreadCounter
	}
	r.readMarkers[r.localUserID] = resolved.Event.ID
	r.readMarkerIndex[r.localUserID] = resolved.Index
	if dropped > r.unreadCounter {
		dropped = r.unreadCounter
	}
	r.unreadCounter -= dropped
	r.mu.Unlock()

	r.readMarkerMoved.Emit(ReadMarkerMove{User: r.localUserID, EventID: resolved.Event.ID, UnreadDropped: dropped})

	if host != nil {
		host.SubmitReceipt(ctx, r.ID, resolved.Event.ID)
	}
}

// ---- outgoing actions ----

// PostMessage sends a plain m.room.message of the given msgtype.
func (r *Room) PostMessage(ctx context.Context, host Host, msgType event.MessageType, body string) *job.Job {
	content := &event.MessageEventContent{MsgType: msgType, Body: body}
	return host.SubmitSend(ctx, r.ID, event.EventMessage, content)
}

// PostMarkdown renders body as markdown and sends it as a formatted
// m.text message.
func (r *Room) PostMarkdown(ctx context.Context, host Host, body string) *job.Job {
	html := format.RenderMarkdown(body)
	content := &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          body,
		Format:        event.FormatHTML,
		FormattedBody: html,
	}
	return host.SubmitSend(ctx, r.ID, event.EventMessage, content)
}

// PostReceipt posts an explicit m.read receipt without going through
// the mark-as-read algorithm's local bookkeeping.
func (r *Room) PostReceipt(ctx context.Context, host Host, eventID id.EventID) *job.Job {
	return host.SubmitReceipt(ctx, r.ID, eventID)
}

// RequestPreviousContent backfills up to limit historical events via
// /messages, ending at the buffer's current oldest known token.
func (r *Room) RequestPreviousContent(ctx context.Context, host Host, limit int) *job.Job {
	r.mu.RLock()
	from := r.prevBatch
	r.mu.RUnlock()
	return host.SubmitPreviousContent(ctx, r.ID, from, limit)
}

// SetPrevBatch records the pagination token to resume backfill from.
func (r *Room) SetPrevBatch(tok id.BatchToken) {
	r.mu.Lock()
	r.prevBatch = tok
	r.mu.Unlock()
}
