// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

import (
	"encoding/json"

	"go.mxclient.dev/mxclient/id"
)

// Event is a single Matrix event. All wire shapes (RoomEvent, StateEvent,
// EphemeralEvent, AccountDataEvent) are represented by this one struct:
// subtype is determined by which optional fields are populated and by
// Type.Class, not by a separate Go type, mirroring how the wire format
// itself only ever sends one JSON shape.
type Event struct {
	Type      Type            `json:"type"`
	RawContent json.RawMessage `json:"content"`
	ID        id.EventID      `json:"event_id,omitempty"`
	Sender    id.UserID       `json:"sender,omitempty"`
	Timestamp int64           `json:"origin_server_ts,omitempty"`
	RoomID    id.RoomID       `json:"room_id,omitempty"`
	StateKey  *string         `json:"state_key,omitempty"`
	Redacts   id.EventID      `json:"redacts,omitempty"`
	Unsigned  Unsigned        `json:"unsigned,omitempty"`

	// Content is the parsed content: a pointer to one of the *EventContent
	// structs registered in content.go, or *UnrecognizedContent if Type had
	// no factory. It is always non-nil after Decode/UnmarshalJSON.
	Content any `json:"-"`
}

type Unsigned struct {
	PrevContent   json.RawMessage `json:"prev_content,omitempty"`
	PrevSender    id.UserID       `json:"prev_sender,omitempty"`
	Age           int64           `json:"age,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	RedactedBecause *Event        `json:"redacted_because,omitempty"`
}

// StateKeyOrEmpty returns the event's state key, or "" if this isn't a
// state event. Matrix uses "" as a valid, distinct state key, so callers
// that need to distinguish "no state key" from "empty state key" should
// check StateKey directly.
func (evt *Event) StateKeyOrEmpty() string {
	if evt.StateKey != nil {
		return *evt.StateKey
	}
	return ""
}

// StateIdentity returns the (type, state_key) pair that identifies this
// event's slot in a room's state map. Only meaningful when evt.StateKey
// is non-nil.
type StateIdentity struct {
	Type     string
	StateKey string
}

func (evt *Event) StateIdentity() StateIdentity {
	return StateIdentity{Type: evt.Type.Type, StateKey: evt.StateKeyOrEmpty()}
}

// Recognized reports whether Content decoded into a registered type rather
// than falling back to UnrecognizedContent.
func (evt *Event) Recognized() bool {
	_, unrecognized := evt.Content.(*UnrecognizedContent)
	return !unrecognized
}

// Decode parses raw into evt, resolving Content via the type registry.
// It never returns an error because of an unrecognized or malformed
// content body — that degrades to UnrecognizedContent, so a single bad
// event never fails the surrounding batch. It can still return an
// error for bytes that aren't a well-formed event envelope at all.
func Decode(raw json.RawMessage) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (evt *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := (*alias)(evt)
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	parsed, recognized, err := ParseContent(evt.Type, evt.RawContent)
	if !recognized || err != nil {
		evt.Content = &UnrecognizedContent{Raw: evt.RawContent}
		return nil
	}
	evt.Content = parsed
	return nil
}

func (evt Event) MarshalJSON() ([]byte, error) {
	type alias Event
	out := alias(evt)
	if unrec, ok := evt.Content.(*UnrecognizedContent); ok && unrec != nil {
		out.RawContent = unrec.Raw
	} else if evt.Content != nil {
		raw, err := json.Marshal(evt.Content)
		if err != nil {
			return nil, err
		}
		out.RawContent = raw
	}
	return json.Marshal(out)
}
