// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

import "go.mxclient.dev/mxclient/id"

// MessageType is the sub-type of a m.room.message event.
// https://matrix.org/docs/spec/client_server/r0.6.0#m-room-message-msgtypes
type MessageType string

const (
	MsgText    MessageType = "m.text"
	MsgEmote   MessageType = "m.emote"
	MsgNotice  MessageType = "m.notice"
	MsgImage   MessageType = "m.image"
	MsgFile    MessageType = "m.file"
	MsgVideo   MessageType = "m.video"
	MsgAudio   MessageType = "m.audio"
)

// Format specifies the format of the formatted_body in m.room.message events.
type Format string

const FormatHTML Format = "org.matrix.custom.html"

// MessageEventContent represents the content of a m.room.message event.
// It's also used for m.sticker, which is identical apart from msgtype.
// https://matrix.org/docs/spec/client_server/r0.6.0#m-room-message
type MessageEventContent struct {
	MsgType MessageType `json:"msgtype"`
	Body    string      `json:"body"`

	Format        Format `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`

	URL  id.ContentURIString `json:"url,omitempty"`
	Info *FileInfo           `json:"info,omitempty"`

	RelatesTo *RelatesTo `json:"m.relates_to,omitempty"`
}

// RelationType names the kind of relation m.relates_to expresses.
type RelationType string

const (
	RelReply   RelationType = "m.in_reply_to"
	RelReplace RelationType = "m.replace"
)

type RelatesTo struct {
	Type    RelationType `json:"rel_type,omitempty"`
	EventID id.EventID   `json:"event_id,omitempty"`
	InReplyTo *InReplyTo `json:"m.in_reply_to,omitempty"`
}

type InReplyTo struct {
	EventID id.EventID `json:"event_id"`
}

type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int    `json:"size,omitempty"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
}

// RedactionEventContent represents the content of a m.room.redaction
// event. The redacted event ID is carried on Event.Redacts, not here, in
// current room versions; Reason is the only field left in content.
type RedactionEventContent struct {
	Reason string `json:"reason,omitempty"`
}

// ReactionEventContent represents the content of a m.reaction event.
type ReactionEventContent struct {
	RelatesTo RelatesTo `json:"m.relates_to"`
}
