// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package room

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/user"
)

func TestDisambiguation_UniqueNamesPassThrough(t *testing.T) {
	users := user.NewRegistry()
	sam, _ := users.GetOrCreate("@sam:s")
	sam.SetDisplayName("Sam")
	alex, _ := users.GetOrCreate("@alex:s")
	alex.SetDisplayName("Alex")

	members := map[id.UserID]*Member{
		"@sam:s":  {User: sam, Membership: event.MembershipJoin},
		"@alex:s": {User: alex, Membership: event.MembershipJoin},
	}
	assert.Equal(t, "Sam", RoomMemberName(sam, members))
	assert.Equal(t, "Alex", RoomMemberName(alex, members))
}

func TestDisambiguation_CollidingNamesGetSuffixed(t *testing.T) {
	// scenario S6.
	users := user.NewRegistry()
	sam1, _ := users.GetOrCreate("@sam1:s")
	sam1.SetDisplayName("Sam")
	sam2, _ := users.GetOrCreate("@sam2:s")
	sam2.SetDisplayName("Sam")

	members := map[id.UserID]*Member{
		"@sam1:s": {User: sam1, Membership: event.MembershipJoin},
		"@sam2:s": {User: sam2, Membership: event.MembershipJoin},
	}
	assert.Equal(t, "Sam (@sam1:s)", RoomMemberName(sam1, members))
	assert.Equal(t, "Sam (@sam2:s)", RoomMemberName(sam2, members))
	assert.NotEqual(t, RoomMemberName(sam1, members), RoomMemberName(sam2, members))
}
