// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mxclient.dev/mxclient/user"
)

func TestManager_InviteThenJoinTransitionSignalOrder(t *testing.T) {
	// scenario S2.
	m := NewManager("@self:s", user.NewRegistry(), nil)

	var order []string
	m.OnNewRoom(func(r *Room) { order = append(order, "newRoom:"+r.JoinState().String()) })
	m.OnInvitedRoom(func(p TransitionPair) { order = append(order, "invitedRoom") })
	m.OnJoinedRoom(func(p TransitionPair) { order = append(order, "joinedRoom") })
	m.OnAboutToDeleteRoom(func(r *Room) { order = append(order, "aboutToDeleteRoom") })

	invite := m.ApplyInvite("!a:s")
	require.NotNil(t, invite)
	joined := m.ApplyJoin("!a:s")
	require.NotNil(t, joined)

	assert.Equal(t, []string{
		"newRoom:invite",
		"invitedRoom",
		"newRoom:join",
		"joinedRoom",
		"aboutToDeleteRoom",
	}, order)

	_, stillInvited := m.Invite("!a:s")
	assert.False(t, stillInvited)
	got, ok := m.Room("!a:s")
	assert.True(t, ok)
	assert.Same(t, joined, got)
}

func TestManager_JoinThenLeaveReusesSameObject(t *testing.T) {
	m := NewManager("@self:s", user.NewRegistry(), nil)
	joined := m.ApplyJoin("!a:s")

	var leftFired int
	m.OnLeftRoom(func(p TransitionPair) { leftFired++ })
	var newRoomFired int
	m.OnNewRoom(func(r *Room) { newRoomFired++ })

	left := m.ApplyLeave("!a:s")
	assert.Same(t, joined, left)
	assert.Equal(t, Leave, left.JoinState())
	assert.Equal(t, 1, leftFired)
	assert.Equal(t, 0, newRoomFired, "Join->Leave transitions in place, no new object")
}

func TestManager_LeaveThenJoinReusesSameObject(t *testing.T) {
	m := NewManager("@self:s", user.NewRegistry(), nil)
	joined := m.ApplyJoin("!a:s")
	m.ApplyLeave("!a:s")
	rejoined := m.ApplyJoin("!a:s")
	assert.Same(t, joined, rejoined)
	assert.Equal(t, Join, rejoined.JoinState())
}

func TestManager_InviteAndLeavePartitionsCoexist(t *testing.T) {
	m := NewManager("@self:s", user.NewRegistry(), nil)
	m.ApplyJoin("!a:s")
	left := m.ApplyLeave("!a:s")
	invite := m.ApplyInvite("!a:s")

	assert.NotSame(t, left, invite)
	gotInvite, ok := m.Invite("!a:s")
	require.True(t, ok)
	assert.Same(t, invite, gotInvite)
	gotRoom, ok := m.Room("!a:s")
	require.True(t, ok)
	assert.Same(t, left, gotRoom)
}

func TestManager_ForgetRemovesRoom(t *testing.T) {
	m := NewManager("@self:s", user.NewRegistry(), nil)
	m.ApplyJoin("!a:s")

	var deleted []*Room
	m.OnAboutToDeleteRoom(func(r *Room) { deleted = append(deleted, r) })
	m.Forget("!a:s")

	_, ok := m.Room("!a:s")
	assert.False(t, ok)
	require.Len(t, deleted, 1)
}

func TestManager_ApplyJoinOnAlreadyJoinedRoomIsNoop(t *testing.T) {
	m := NewManager("@self:s", user.NewRegistry(), nil)
	first := m.ApplyJoin("!a:s")

	var fired int
	m.OnJoinedRoom(func(p TransitionPair) { fired++ })
	second := m.ApplyJoin("!a:s")

	assert.Same(t, first, second)
	assert.Equal(t, 0, fired)
}
