// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package id contains the opaque, bytewise-equal identifier types used
// throughout the client-server API: user, room, event and device
// identifiers, plus opaque sync/pagination tokens.
package id

import "strings"

// A UserID is a string of the form @localpart:server that identifies an
// account on a homeserver.
type UserID string

// A RoomID is a string starting with ! that references a specific room.
// https://matrix.org/docs/spec/appendices#room-ids-and-event-ids
type RoomID string

// A RoomAlias is a string starting with # that can be resolved into a RoomID.
// https://matrix.org/docs/spec/appendices#room-aliases
type RoomAlias string

// An EventID is a string starting with $ that references a specific event.
//
// https://matrix.org/docs/spec/appendices#room-ids-and-event-ids
// https://matrix.org/docs/spec/rooms/v4#event-ids
type EventID string

// A DeviceID is an arbitrary string that references a specific device.
type DeviceID string

// A KeyID is a string usually formatted as <algorithm>:<device_id> that is used as the key in deviceid-key mappings.
type KeyID string

// A BatchToken is an opaque cursor returned by /sync or the pagination
// endpoints (next_batch, prev_batch, from, to). Its structure is not part
// of the contract; equality is bytewise.
type BatchToken string

func (userID UserID) String() string     { return string(userID) }
func (roomID RoomID) String() string     { return string(roomID) }
func (roomAlias RoomAlias) String() string { return string(roomAlias) }
func (eventID EventID) String() string   { return string(eventID) }
func (deviceID DeviceID) String() string { return string(deviceID) }
func (keyID KeyID) String() string       { return string(keyID) }
func (tok BatchToken) String() string    { return string(tok) }

// Parse splits a well-formed @local:server MXID into its two components.
// ok is false if userID doesn't start with '@' or has no colon.
func (userID UserID) Parse() (local, domain string, ok bool) {
	raw := string(userID)
	if len(raw) == 0 || raw[0] != '@' {
		return "", "", false
	}
	idx := strings.IndexByte(raw, ':')
	if idx < 0 {
		return "", "", false
	}
	return raw[1:idx], raw[idx+1:], true
}

// Domain returns the server part of the MXID, i.e. everything after the
// first colon. It returns an empty string if the ID is malformed.
func (userID UserID) Domain() string {
	_, domain, ok := userID.Parse()
	if !ok {
		return ""
	}
	return domain
}

// Localpart returns the part of the MXID between the leading '@' and the
// first colon.
func (userID UserID) Localpart() string {
	local, _, ok := userID.Parse()
	if !ok {
		return ""
	}
	return local
}
