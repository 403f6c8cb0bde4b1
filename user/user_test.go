// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package user

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.mxclient.dev/mxclient/id"
)

func TestRegistry_GetOrCreateOnlyCreatesOnce(t *testing.T) {
	r := NewRegistry()
	u1, created1 := r.GetOrCreate("@sam:s")
	assert.True(t, created1)
	u2, created2 := r.GetOrCreate("@sam:s")
	assert.False(t, created2)
	assert.Same(t, u1, u2)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetDoesNotCreate(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("@nobody:s")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestUser_SetDisplayNameReportsChange(t *testing.T) {
	u := newUser("@sam:s")
	assert.True(t, u.SetDisplayName("Sam"))
	assert.False(t, u.SetDisplayName("Sam"))
	assert.True(t, u.SetDisplayName("Sammy"))
	assert.Equal(t, "Sammy", u.DisplayName())
}

func TestUser_SetAvatarURLReportsChange(t *testing.T) {
	u := newUser("@sam:s")
	a := id.ContentURI{Homeserver: "s", FileID: "abc"}
	assert.True(t, u.SetAvatarURL(a))
	assert.False(t, u.SetAvatarURL(a))
}

func TestUser_UsersPersistAcrossRoomLeaves(t *testing.T) {
	// Users persist across room leaves: modeled here simply as the
	// registry never removing an entry on its own; only the room's
	// membership map does.
	r := NewRegistry()
	u, _ := r.GetOrCreate("@sam:s")
	u.SetDisplayName("Sam")

	got, ok := r.Get("@sam:s")
	assert.True(t, ok)
	assert.Equal(t, "Sam", got.DisplayName())
}
