// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

import "go.mxclient.dev/mxclient/id"

// DirectChatsEventContent represents the content of a m.direct account
// data event: the set of rooms the user considers direct chats with each
// other user. https://spec.matrix.org/v1.2/client-server-api/#mdirect
type DirectChatsEventContent map[id.UserID][]id.RoomID

// IgnoredUserListEventContent represents the content of a
// m.ignored_user_list account data event.
// https://spec.matrix.org/v1.2/client-server-api/#mignored_user_list
type IgnoredUserListEventContent struct {
	IgnoredUsers map[id.UserID]struct{} `json:"ignored_users"`
}

// FullyReadEventContent represents the content of a m.fully_read
// room account data event, used as the private fallback read marker.
type FullyReadEventContent struct {
	EventID id.EventID `json:"event_id"`
}

// RoomTag is one of the well-known tag names, or a "u."-prefixed
// user-defined tag.
type RoomTag string

const (
	RoomTagFavourite   RoomTag = "m.favourite"
	RoomTagLowPriority RoomTag = "m.lowpriority"
)

type TagMetadata struct {
	Order *float64 `json:"order,omitempty"`
}

// TagEventContent represents the content of a m.tag room account data
// event. https://spec.matrix.org/v1.2/client-server-api/#mtag
type TagEventContent struct {
	Tags map[RoomTag]TagMetadata `json:"tags"`
}
