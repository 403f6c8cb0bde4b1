// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package room

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/user"
)

func strptr(s string) *string { return &s }

func stateKeyEvent(t event.Type, stateKey string, content any) *event.Event {
	return &event.Event{Type: t, StateKey: strptr(stateKey), Content: content, ID: id.EventID("$state-" + stateKey)}
}

func memberEvent(subject id.UserID, membership event.Membership, displayName string) *event.Event {
	return stateKeyEvent(event.StateMember, string(subject), &event.MemberEventContent{
		Membership:  membership,
		Displayname: displayName,
	})
}

func msgEvent(eventID, sender, body string) *event.Event {
	return &event.Event{
		Type:    event.EventMessage,
		ID:      id.EventID(eventID),
		Sender:  id.UserID(sender),
		Content: &event.MessageEventContent{MsgType: event.MsgText, Body: body},
	}
}

func newTestRoom() *Room {
	return New("!a:s", "@self:s", user.NewRegistry(), Join)
}

func TestRoom_InitialSyncCreatesJoinedRoomWithUnread(t *testing.T) {
	// scenario S1.
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{msgEvent("$e1", "@u:s", "hi")}, UnreadNotifications{})

	assert.Equal(t, Join, r.JoinState())
	assert.Equal(t, 1, r.Timeline().Len())
	assert.Equal(t, 1, r.UnreadCounter())
	assert.Equal(t, r.Timeline().MinIndex(), r.Timeline().MaxIndex())
}

func TestRoom_SelfAuthoredMessagesDoNotCountAsUnread(t *testing.T) {
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{msgEvent("$e1", "@self:s", "hi from me")}, UnreadNotifications{})
	assert.Equal(t, 0, r.UnreadCounter())
}

func TestRoom_StateNameChangeEmitsNamesChanged(t *testing.T) {
	r := newTestRoom()
	var fired int
	r.OnNamesChanged(func(struct{}) { fired++ })
	r.ApplyState([]*event.Event{stateKeyEvent(event.StateRoomName, "", &event.RoomNameEventContent{Name: "Test Room"})})
	assert.Equal(t, "Test Room", r.Name())
	assert.Equal(t, 1, fired)
	assert.Equal(t, "Test Room", r.DisplayName())
}

func TestRoom_MemberJoinEmitsUserAdded(t *testing.T) {
	r := newTestRoom()
	var added []string
	r.OnUserAdded(func(u *user.User) { added = append(added, string(u.ID)) })

	r.ApplyState([]*event.Event{memberEvent("@bob:s", event.MembershipJoin, "Bob")})
	require.Len(t, added, 1)
	assert.Equal(t, "@bob:s", added[0])
	assert.Len(t, r.Members(), 1)
}

func TestRoom_MemberLeaveEmitsUserRemoved(t *testing.T) {
	r := newTestRoom()
	r.ApplyState([]*event.Event{memberEvent("@bob:s", event.MembershipJoin, "Bob")})

	var removed []string
	r.OnUserRemoved(func(u *user.User) { removed = append(removed, string(u.ID)) })
	r.ApplyState([]*event.Event{memberEvent("@bob:s", event.MembershipLeave, "Bob")})

	require.Len(t, removed, 1)
	assert.Len(t, r.Members(), 0)
}

func TestRoom_MemberBatchLastWriteWins(t *testing.T) {
	// invariant 4, applied to membership within one Room.
	r := newTestRoom()
	r.ApplyState([]*event.Event{
		memberEvent("@bob:s", event.MembershipJoin, "Bob"),
		memberEvent("@bob:s", event.MembershipLeave, "Bob"),
		memberEvent("@bob:s", event.MembershipJoin, "Bob"),
	})
	members := r.Members()
	require.Len(t, members, 1)
	assert.Equal(t, event.MembershipJoin, members["@bob:s"].Membership)
}

func TestRoom_MarkMessagesAsReadSkipsSelfAuthoredEvents(t *testing.T) {
	// scenario S3.
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{
		msgEvent("$e1", "@other:s", "a"),
		msgEvent("$e2", "@self:s", "b"),
		msgEvent("$e3", "@self:s", "c"),
	}, UnreadNotifications{})

	// Establish an initial read marker at $e1.
	r.MarkMessagesAsRead(context.Background(), nil, "$e1")
	marker, ok := r.ReadMarker("@self:s")
	require.True(t, ok)
	assert.Equal(t, id.EventID("$e1"), marker)

	r.MarkMessagesAsRead(context.Background(), nil, "$e3")
	marker, ok = r.ReadMarker("@self:s")
	require.True(t, ok)
	assert.Equal(t, id.EventID("$e1"), marker, "marker should not advance past e1: no non-self event follows it")
}

func TestRoom_MarkMessagesAsReadAdvancesAndDropsUnread(t *testing.T) {
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{
		msgEvent("$e1", "@other:s", "a"),
		msgEvent("$e2", "@other:s", "b"),
	}, UnreadNotifications{})
	assert.Equal(t, 2, r.UnreadCounter())

	var moved []ReadMarkerMove
	r.OnReadMarkerMoved(func(m ReadMarkerMove) { moved = append(moved, m) })
	r.MarkMessagesAsRead(context.Background(), nil, "$e2")

	require.Len(t, moved, 1)
	assert.Equal(t, id.EventID("$e2"), moved[0].EventID)
	assert.Equal(t, 0, r.UnreadCounter())
}

func TestRoom_MarkMessagesAsReadUnknownEventIsNoop(t *testing.T) {
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{msgEvent("$e1", "@other:s", "a")}, UnreadNotifications{})
	r.MarkMessagesAsRead(context.Background(), nil, "$doesnotexist")
	_, ok := r.ReadMarker("@self:s")
	assert.False(t, ok)
}

func TestRoom_TypingReplacesSetWholesale(t *testing.T) {
	r := newTestRoom()
	var got []id.UserID
	r.OnTypingChanged(func(u []id.UserID) { got = u })
	r.ApplyEphemeral([]*event.Event{{
		Type:    event.EphemeralEventTyping,
		Content: &event.TypingEventContent{UserIDs: []id.UserID{"@a:s", "@b:s"}},
	}})
	assert.ElementsMatch(t, []id.UserID{"@a:s", "@b:s"}, got)
}

func TestRoom_HighlightCounterIsServerAuthoritative(t *testing.T) {
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{msgEvent("$e1", "@other:s", "a")}, UnreadNotifications{HighlightCount: 3})
	assert.Equal(t, 3, r.HighlightCounter())
}

func TestRoom_ResetCountersDoNotTouchReadMarker(t *testing.T) {
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{msgEvent("$e1", "@other:s", "a")}, UnreadNotifications{HighlightCount: 1})
	r.ResetNotificationCount()
	r.ResetHighlightCount()
	assert.Equal(t, 0, r.UnreadCounter())
	assert.Equal(t, 0, r.HighlightCounter())
	_, ok := r.ReadMarker("@self:s")
	assert.False(t, ok)
}

func TestRoom_RedactionTombstonesInPlace(t *testing.T) {
	// invariant 5.
	r := newTestRoom()
	r.ApplyNewTimeline([]*event.Event{msgEvent("$e1", "@other:s", "secret")}, UnreadNotifications{})
	before, ok := r.Timeline().FindByID("$e1")
	require.True(t, ok)
	beforeIdx := before.Index

	redaction := &event.Event{
		Type:    event.EventRedaction,
		ID:      "$r1",
		Sender:  "@other:s",
		Redacts: "$e1",
		Content: &event.RedactionEventContent{},
	}
	r.ApplyNewTimeline([]*event.Event{redaction}, UnreadNotifications{})

	after, ok := r.Timeline().FindByID("$e1")
	require.True(t, ok)
	assert.Equal(t, beforeIdx, after.Index)
	_, isRedaction := after.Event.Content.(*event.RedactionEventContent)
	assert.True(t, isRedaction)
}

func TestRoom_RedactionTombstonesTargetFromSameBatch(t *testing.T) {
	r := newTestRoom()
	msg := msgEvent("$e1", "@other:s", "secret")
	redaction := &event.Event{
		Type:    event.EventRedaction,
		ID:      "$r1",
		Sender:  "@other:s",
		Redacts: "$e1",
		Content: &event.RedactionEventContent{},
	}

	r.ApplyNewTimeline([]*event.Event{msg, redaction}, UnreadNotifications{})

	item, ok := r.Timeline().FindByID("$e1")
	require.True(t, ok)
	_, isRedaction := item.Event.Content.(*event.RedactionEventContent)
	assert.True(t, isRedaction, "target delivered in the same batch as its redaction should still be tombstoned")

	_, redactionAsOwnItem := r.Timeline().FindByID("$r1")
	assert.False(t, redactionAsOwnItem, "a redaction that found its target should not also appear as its own timeline item")
}
