// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package user implements the connection-wide user registry. A User is
// created on first sighting (in a member event, a receipt, a DM
// invite...) and lives for the lifetime of the owning Connection, even
// across the rooms it was seen in being left.
package user

import (
	"sync"

	"go.mxclient.dev/mxclient/id"
)

// User is the connection-wide record of one Matrix account. Rooms hold
// borrowed pointers into a Registry; they never own a User.
type User struct {
	ID id.UserID

	mu          sync.RWMutex
	displayName string
	avatarURL   id.ContentURI
}

func newUser(userID id.UserID) *User {
	return &User{ID: userID}
}

func (u *User) DisplayName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.displayName
}

// SetDisplayName updates the cached display name and reports whether it
// actually changed, so callers (Room's membership application) know
// whether to fire a rename signal.
func (u *User) SetDisplayName(name string) (changed bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	changed = u.displayName != name
	u.displayName = name
	return changed
}

func (u *User) AvatarURL() id.ContentURI {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.avatarURL
}

func (u *User) SetAvatarURL(uri id.ContentURI) (changed bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	changed = u.avatarURL != uri
	u.avatarURL = uri
	return changed
}

// Factory builds a User for a first-sighted id. Connection injects this
// via a functional option so applications can supply their own User
// subtype embedding *User.
type Factory func(id.UserID) *User

// Registry is the Connection-owned set of Users, keyed by id. It is
// safe for concurrent use since the sync loop and job completions may
// touch it from different points in the call graph even in a
// single-threaded event-loop deployment.
type Registry struct {
	mu      sync.RWMutex
	users   map[id.UserID]*User
	factory Factory
}

func NewRegistry() *Registry {
	return NewRegistryWithFactory(nil)
}

// NewRegistryWithFactory is like NewRegistry but uses factory (if
// non-nil) to construct new Users instead of the plain constructor.
func NewRegistryWithFactory(factory Factory) *Registry {
	if factory == nil {
		factory = newUser
	}
	return &Registry{users: make(map[id.UserID]*User), factory: factory}
}

// GetOrCreate returns the existing User for userID, creating it (and
// recording that this was the first sighting) if necessary.
func (r *Registry) GetOrCreate(userID id.UserID) (u *User, created bool) {
	r.mu.RLock()
	u, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return u, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok = r.users[userID]; ok {
		return u, false
	}
	u = r.factory(userID)
	r.users[userID] = u
	return u, true
}

// Get returns the User for userID without creating it.
func (r *Registry) Get(userID id.UserID) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	return u, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
