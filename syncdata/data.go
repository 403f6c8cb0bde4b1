// Copyright (c) 2024 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package syncdata defines the shape of a parsed /sync response,
// independent of how it was fetched or how a Room applies it.
package syncdata

import (
	"encoding/json"

	"go.mxclient.dev/mxclient/id"
)

// UnreadNotificationCounts mirrors the server-computed per-room
// unread_notifications block.
type UnreadNotificationCounts struct {
	NotificationCount int `json:"notification_count,omitempty"`
	HighlightCount    int `json:"highlight_count,omitempty"`
}

// RoomData is one room's slice of a sync response: the state delta, the
// timeline delta (with the server's gap flag), ephemeral events and the
// room-scoped account data delta.
type RoomData struct {
	State struct {
		Events []json.RawMessage `json:"events"`
	} `json:"state"`
	Timeline struct {
		Events    []json.RawMessage `json:"events"`
		Limited   bool              `json:"limited,omitempty"`
		PrevBatch id.BatchToken     `json:"prev_batch,omitempty"`
	} `json:"timeline"`
	Ephemeral struct {
		Events []json.RawMessage `json:"events"`
	} `json:"ephemeral"`
	AccountData struct {
		Events []json.RawMessage `json:"events"`
	} `json:"account_data"`
	UnreadNotifications UnreadNotificationCounts `json:"unread_notifications,omitempty"`

	// InviteState carries the abbreviated state Matrix servers send for
	// rooms/invite entries in place of State.
	InviteState struct {
		Events []json.RawMessage `json:"events"`
	} `json:"invite_state,omitempty"`
}

// Data is the top-level parsed shape of a /sync response.
type Data struct {
	NextBatch string `json:"next_batch"`

	Rooms struct {
		Join   map[id.RoomID]RoomData `json:"join,omitempty"`
		Invite map[id.RoomID]RoomData `json:"invite,omitempty"`
		Leave  map[id.RoomID]RoomData `json:"leave,omitempty"`
	} `json:"rooms"`

	AccountData struct {
		Events []json.RawMessage `json:"events"`
	} `json:"account_data"`
	ToDevice struct {
		Events []json.RawMessage `json:"events"`
	} `json:"to_device"`
	Presence struct {
		Events []json.RawMessage `json:"events"`
	} `json:"presence"`
}
