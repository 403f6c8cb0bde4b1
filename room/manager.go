// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package room

import (
	"sync"

	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/signal"
	"go.mxclient.dev/mxclient/user"
)

// Factory builds a Room object; Connection injects this via a
// functional option so applications can supply their own Room subtype.
type Factory func(roomID id.RoomID, localUserID id.UserID, users *user.Registry, joinState JoinState) *Room

// TransitionPair is the payload of joinedRoom/leftRoom/invitedRoom: the
// room in its new state, plus the object it replaced (nil if there was
// none).
type TransitionPair struct {
	Room     *Room
	Previous *Room
}

// Manager owns every Room object for one connection and drives the
// join-state machine: an Invite object is always distinct from the
// Join/Leave object sharing its id, while Join and Leave share a
// single object that transitions in place.
type Manager struct {
	localUserID id.UserID
	users       *user.Registry
	factory     Factory

	mu      sync.RWMutex
	invites map[id.RoomID]*Room
	rooms   map[id.RoomID]*Room // JoinState is Join or Leave

	newRoom          *signal.Dispatcher[*Room]
	invitedRoom      *signal.Dispatcher[TransitionPair]
	joinedRoom       *signal.Dispatcher[TransitionPair]
	leftRoom         *signal.Dispatcher[TransitionPair]
	aboutToDeleteRoom *signal.Dispatcher[*Room]
}

func defaultFactory(roomID id.RoomID, localUserID id.UserID, users *user.Registry, joinState JoinState) *Room {
	return New(roomID, localUserID, users, joinState)
}

// NewManager constructs an empty Manager. Pass nil factory to use the
// default Room constructor.
func NewManager(localUserID id.UserID, users *user.Registry, factory Factory) *Manager {
	if factory == nil {
		factory = defaultFactory
	}
	return &Manager{
		localUserID: localUserID,
		users:       users,
		factory:     factory,

		invites: make(map[id.RoomID]*Room),
		rooms:   make(map[id.RoomID]*Room),

		newRoom:           signal.NewDispatcher[*Room](),
		invitedRoom:       signal.NewDispatcher[TransitionPair](),
		joinedRoom:        signal.NewDispatcher[TransitionPair](),
		leftRoom:          signal.NewDispatcher[TransitionPair](),
		aboutToDeleteRoom: signal.NewDispatcher[*Room](),
	}
}

func (m *Manager) OnNewRoom(h func(*Room)) signal.Token             { return m.newRoom.Subscribe(h) }
func (m *Manager) OnInvitedRoom(h func(TransitionPair)) signal.Token { return m.invitedRoom.Subscribe(h) }
func (m *Manager) OnJoinedRoom(h func(TransitionPair)) signal.Token  { return m.joinedRoom.Subscribe(h) }
func (m *Manager) OnLeftRoom(h func(TransitionPair)) signal.Token    { return m.leftRoom.Subscribe(h) }
func (m *Manager) OnAboutToDeleteRoom(h func(*Room)) signal.Token {
	return m.aboutToDeleteRoom.Subscribe(h)
}

// Invite returns the current invite-partition object for id, if any.
func (m *Manager) Invite(roomID id.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.invites[roomID]
	return r, ok
}

// Room returns the current join/leave-partition object for id, if any.
func (m *Manager) Room(roomID id.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// Rooms returns every room currently in the Join or Leave partition.
func (m *Manager) Rooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

// ApplyInvite moves roomID into the Invite partition: None->Invite
// creates a fresh object with no Previous; Invite->Invite replaces the
// existing invite object, reporting it as Previous and tearing down
// the one it replaced; Leave->Invite creates a fresh invite object
// alongside the untouched Leave-partition room, reporting that Leave
// room as Previous. The Invite and Leave partitions coexist; ApplyInvite
// never touches or deletes m.rooms.
func (m *Manager) ApplyInvite(roomID id.RoomID) *Room {
	m.mu.Lock()
	prevInvite := m.invites[roomID]
	prev := prevInvite
	if prev == nil {
		prev = m.rooms[roomID]
	}
	invite := m.factory(roomID, m.localUserID, m.users, Invite)
	m.invites[roomID] = invite
	m.mu.Unlock()

	m.newRoom.Emit(invite)
	m.invitedRoom.Emit(TransitionPair{Room: invite, Previous: prev})
	if prevInvite != nil {
		m.aboutToDeleteRoom.Emit(prevInvite)
	}
	return invite
}

// ApplyJoin moves roomID into Join. If it was already Join, this is a
// no-op returning the existing object (sync deltas for an
// already-joined room don't re-fire lifecycle signals). Otherwise it
// either creates a fresh object (None->Join or Invite->Join) or
// transitions the existing one in place (Leave->Join).
func (m *Manager) ApplyJoin(roomID id.RoomID) *Room {
	m.mu.Lock()
	existing, hasExisting := m.rooms[roomID]
	if hasExisting && existing.JoinState() == Join {
		m.mu.Unlock()
		return existing
	}
	invite, hadInvite := m.invites[roomID]
	if hadInvite {
		delete(m.invites, roomID)
	}
	m.mu.Unlock()

	switch {
	case hadInvite:
		joined := m.factory(roomID, m.localUserID, m.users, Join)
		m.mu.Lock()
		m.rooms[roomID] = joined
		m.mu.Unlock()
		m.newRoom.Emit(joined)
		m.joinedRoom.Emit(TransitionPair{Room: joined, Previous: invite})
		m.aboutToDeleteRoom.Emit(invite)
		return joined
	case hasExisting: // Leave -> Join, same object
		existing.setJoinState(Join)
		m.joinedRoom.Emit(TransitionPair{Room: existing})
		return existing
	default: // None -> Join
		joined := m.factory(roomID, m.localUserID, m.users, Join)
		m.mu.Lock()
		m.rooms[roomID] = joined
		m.mu.Unlock()
		m.newRoom.Emit(joined)
		m.joinedRoom.Emit(TransitionPair{Room: joined})
		return joined
	}
}

// ApplyLeave moves roomID into Leave, mirroring ApplyJoin's cases.
func (m *Manager) ApplyLeave(roomID id.RoomID) *Room {
	m.mu.Lock()
	existing, hasExisting := m.rooms[roomID]
	if hasExisting && existing.JoinState() == Leave {
		m.mu.Unlock()
		return existing
	}
	invite, hadInvite := m.invites[roomID]
	if hadInvite {
		delete(m.invites, roomID)
	}
	m.mu.Unlock()

	switch {
	case hadInvite:
		left := m.factory(roomID, m.localUserID, m.users, Leave)
		m.mu.Lock()
		m.rooms[roomID] = left
		m.mu.Unlock()
		m.newRoom.Emit(left)
		m.leftRoom.Emit(TransitionPair{Room: left, Previous: invite})
		m.aboutToDeleteRoom.Emit(invite)
		return left
	case hasExisting: // Join -> Leave, same object
		existing.setJoinState(Leave)
		m.leftRoom.Emit(TransitionPair{Room: existing})
		return existing
	default: // None -> Leave
		left := m.factory(roomID, m.localUserID, m.users, Leave)
		m.mu.Lock()
		m.rooms[roomID] = left
		m.mu.Unlock()
		m.newRoom.Emit(left)
		m.leftRoom.Emit(TransitionPair{Room: left})
		return left
	}
}

// Forget implements the connection's two-step forget_room semantics at
// the object-lifecycle level: the caller is responsible for the actual
// /leave and /forget jobs; Forget just performs "as above to Leave,
// then aboutToDeleteRoom" once the server has confirmed both.
func (m *Manager) Forget(roomID id.RoomID) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if r.JoinState() != Leave {
		m.mu.Unlock()
		m.ApplyLeave(roomID)
		m.mu.Lock()
		r = m.rooms[roomID]
	}
	delete(m.rooms, roomID)
	m.mu.Unlock()

	m.aboutToDeleteRoom.Emit(r)
}
