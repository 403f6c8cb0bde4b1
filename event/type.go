// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package event implements the tagged-union event model of the Matrix
// client-server API: a closed set of well-known room, state, ephemeral
// and account-data types plus a lossless fallback for anything else.
package event

import (
	"encoding/json"
	"strings"
)

// Class classifies an event type by where it can appear: the timeline,
// room state, an ephemeral stream, or an account-data overlay.
type Class int

const (
	// MessageEventType marks events that belong in a room's timeline.
	MessageEventType Class = iota
	// StateEventType marks events identified by (type, state_key).
	StateEventType
	// EphemeralEventType marks events that are applied but never timelined.
	EphemeralEventType
	// AccountDataEventType marks per-user or per-room overlays.
	AccountDataEventType
	// UnknownEventType is not assigned by the registry lookup: type strings
	// not in the registry get MessageEventType.
	UnknownEventType
)

// Type is a Matrix event type string together with the class the registry
// resolved it to. Two Types compare equal iff their Type strings match;
// Class is metadata derived from the string, not part of identity.
type Type struct {
	Type  string
	Class Class
}

// NewEventType builds a Type for a raw type string, guessing its class
// from the built-in registry. Unregistered custom types default to
// MessageEventType, since most custom types in the wild are timeline
// events (reactions, bridge markers, ...); callers that know better should
// set Class explicitly.
func NewEventType(name string) Type {
	t := Type{Type: name}
	t.Class = classOf(name)
	return t
}

func (t Type) IsState() bool        { return t.Class == StateEventType }
func (t Type) IsEphemeral() bool    { return t.Class == EphemeralEventType }
func (t Type) IsAccountData() bool  { return t.Class == AccountDataEventType }
func (t Type) IsCustom() bool       { return !strings.HasPrefix(t.Type, "m.") }
func (t Type) String() string       { return t.Type }

func (t *Type) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &t.Type); err != nil {
		return err
	}
	t.Class = classOf(t.Type)
	return nil
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Type)
}

func classOf(name string) Class {
	if class, ok := classRegistry[name]; ok {
		return class
	}
	return MessageEventType
}

// classRegistry backs NewEventType and Type.UnmarshalJSON. It is seeded by the
// var blocks below and by RegisterCustomType for application-defined types.
var classRegistry = map[string]Class{}

func register(t Type) Type {
	classRegistry[t.Type] = t.Class
	return t
}

// RegisterCustomType tells the package how to classify a type string that
// isn't one of the built-ins below, so NewEventType and content parsing
// (see content.go) route it correctly. Applications call this during
// initialization for any namespaced (non "m.") events they emit or
// consume as state/ephemeral/account-data.
func RegisterCustomType(t Type) Type {
	return register(t)
}

// State events
var (
	StateAliases        = register(Type{"m.room.aliases", StateEventType})
	StateCanonicalAlias = register(Type{"m.room.canonical_alias", StateEventType})
	StateCreate         = register(Type{"m.room.create", StateEventType})
	StateJoinRules      = register(Type{"m.room.join_rules", StateEventType})
	StateMember         = register(Type{"m.room.member", StateEventType})
	StatePowerLevels    = register(Type{"m.room.power_levels", StateEventType})
	StateRoomName       = register(Type{"m.room.name", StateEventType})
	StateTopic          = register(Type{"m.room.topic", StateEventType})
	StateRoomAvatar     = register(Type{"m.room.avatar", StateEventType})
	StateTombstone      = register(Type{"m.room.tombstone", StateEventType})
)

// Timeline (message) events
var (
	EventMessage   = register(Type{"m.room.message", MessageEventType})
	EventRedaction = register(Type{"m.room.redaction", MessageEventType})
	EventReaction  = register(Type{"m.reaction", MessageEventType})
	EventSticker   = register(Type{"m.sticker", MessageEventType})
	EventEncrypted = register(Type{"m.room.encrypted", MessageEventType})
)

// Ephemeral events
var (
	EphemeralEventTyping  = register(Type{"m.typing", EphemeralEventType})
	EphemeralEventReceipt = register(Type{"m.receipt", EphemeralEventType})
)

// Account data events
var (
	AccountDataDirectChats     = register(Type{"m.direct", AccountDataEventType})
	AccountDataIgnoredUserList = register(Type{"m.ignored_user_list", AccountDataEventType})
	AccountDataRoomTags        = register(Type{"m.tag", AccountDataEventType})
	AccountDataFullyRead       = register(Type{"m.fully_read", AccountDataEventType})
)
