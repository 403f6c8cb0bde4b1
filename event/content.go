// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package event

import "encoding/json"

// contentFactory maps a registered event type string to a constructor for
// its typed content struct. The built-in entries are listed here; applications
// add custom types via RegisterContentFactory.
var contentFactory = map[string]func() any{
	StateMember.Type:         func() any { return &MemberEventContent{} },
	StateRoomName.Type:       func() any { return &RoomNameEventContent{} },
	StateCanonicalAlias.Type: func() any { return &CanonicalAliasEventContent{} },
	StateAliases.Type:        func() any { return &AliasesEventContent{} },
	StateTopic.Type:          func() any { return &TopicEventContent{} },
	StateCreate.Type:         func() any { return &CreateEventContent{} },
	StatePowerLevels.Type:    func() any { return &PowerLevelsEventContent{} },
	StateTombstone.Type:      func() any { return &TombstoneEventContent{} },

	EventMessage.Type:   func() any { return &MessageEventContent{} },
	EventSticker.Type:   func() any { return &MessageEventContent{} },
	EventRedaction.Type: func() any { return &RedactionEventContent{} },
	EventReaction.Type:  func() any { return &ReactionEventContent{} },

	EphemeralEventTyping.Type:  func() any { return &TypingEventContent{} },
	EphemeralEventReceipt.Type: func() any { return &ReceiptEventContent{} },

	AccountDataDirectChats.Type:     func() any { return &DirectChatsEventContent{} },
	AccountDataIgnoredUserList.Type: func() any { return &IgnoredUserListEventContent{} },
	AccountDataRoomTags.Type:        func() any { return &TagEventContent{} },
	AccountDataFullyRead.Type:       func() any { return &FullyReadEventContent{} },
}

// RegisterContentFactory teaches the package how to parse the content of a
// custom event type. factory must return a pointer to a struct suitable
// for json.Unmarshal. Call this during application init, before any
// events of that type are decoded.
func RegisterContentFactory(t Type, factory func() any) {
	contentFactory[t.Type] = factory
}

// UnrecognizedContent is the fallback content for any type string that has
// no registered factory. It preserves the original bytes so re-encoding
// the event is lossless, per the "never fail the surrounding batch"
// requirement on event decoding.
type UnrecognizedContent struct {
	Type json.RawMessage
	Raw  json.RawMessage
}

// ParseContent decodes raw into the content struct registered for t, or
// returns nil with recognized=false (the caller then wraps raw as
// UnrecognizedContent) if t has no factory. It never returns an error for an unrecognized type;
// it can only fail if a *registered* type's JSON doesn't match its struct,
// in which case the caller should fall back to unrecognized too.
func ParseContent(t Type, raw json.RawMessage) (parsed any, recognized bool, err error) {
	factory, ok := contentFactory[t.Type]
	if !ok {
		return nil, false, nil
	}
	inst := factory()
	if len(raw) == 0 {
		return inst, true, nil
	}
	if err := json.Unmarshal(raw, inst); err != nil {
		return nil, false, err
	}
	return inst, true, nil
}
