// Copyright (c) 2021 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

import "go.mxclient.dev/mxclient/id"

// RoomNameEventContent represents the content of a m.room.name state
// event. https://spec.matrix.org/v1.2/client-server-api/#mroomname
type RoomNameEventContent struct {
	Name string `json:"name"`
}

// CanonicalAliasEventContent represents the content of a
// m.room.canonical_alias state event.
// https://spec.matrix.org/v1.2/client-server-api/#mroomcanonical_alias
type CanonicalAliasEventContent struct {
	Alias      id.RoomAlias   `json:"alias"`
	AltAliases []id.RoomAlias `json:"alt_aliases,omitempty"`
}

// AliasesEventContent represents the content of a legacy m.room.aliases
// state event (state_key is the publishing server's domain).
// https://spec.matrix.org/v1.2/appendices/#server-acls-for-rooms names it
// deprecated, but still requires deriving Room.Aliases from it.
type AliasesEventContent struct {
	Aliases []id.RoomAlias `json:"aliases"`
}

// TopicEventContent represents the content of a m.room.topic state event.
// https://spec.matrix.org/v1.2/client-server-api/#mroomtopic
type TopicEventContent struct {
	Topic string `json:"topic"`
}

type RoomVersion string

// CreateEventContent represents the content of a m.room.create state
// event. https://spec.matrix.org/v1.2/client-server-api/#mroomcreate
type CreateEventContent struct {
	RoomVersion RoomVersion `json:"room_version,omitempty"`
	// Deprecated: use the event sender instead.
	Creator id.UserID `json:"creator,omitempty"`
}

// PowerLevelsEventContent represents the content of a m.room.power_levels
// state event. Only the fields the client runtime needs to decide whether
// a job like /kick or /state may succeed are kept. Unknown fields remain in
// Event.RawContent after decoding, but Event.MarshalJSON re-encodes from
// Content, so they are not written back out.
type PowerLevelsEventContent struct {
	UsersDefault    int            `json:"users_default,omitempty"`
	EventsDefault   int            `json:"events_default,omitempty"`
	StateDefault    int            `json:"state_default,omitempty"`
	Users           map[id.UserID]int `json:"users,omitempty"`
	Invite          int            `json:"invite,omitempty"`
	Kick            int            `json:"kick,omitempty"`
	Ban             int            `json:"ban,omitempty"`
	Redact          int            `json:"redact,omitempty"`
}

// PowerLevel returns the effective power level for a user given this
// event's Users map and UsersDefault fallback.
func (c *PowerLevelsEventContent) PowerLevel(user id.UserID) int {
	if lvl, ok := c.Users[user]; ok {
		return lvl
	}
	return c.UsersDefault
}

// TombstoneEventContent represents the content of a m.room.tombstone
// state event, marking a room as superseded by another.
type TombstoneEventContent struct {
	Body            string    `json:"body"`
	ReplacementRoom id.RoomID `json:"replacement_room"`
}
