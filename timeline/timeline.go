// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package timeline implements the ordered, gap-aware event buffer that
// backs each room: a deque with stable, never-reused indices, dedup on
// insertion, and O(1) index lookup plus O(log n) id lookup.
package timeline

import (
	"sort"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
)

// Index is a stable, monotonically assigned position in a room's
// timeline. Indices never restart and are never reused: prepending
// historical events decrements from the current minimum, appending new
// events increments from the current maximum.
type Index int64

// TimelineEdge is the sentinel that MinIndex and MaxIndex report for an
// empty buffer.
const TimelineEdge Index = -1 << 62

// Item pairs one event with its assigned Index.
type Item struct {
	Index Index
	Event *event.Event
}

// Buffer is a double-ended, base-offset-indexed deque of timeline
// events. The zero value is not usable; construct with New.
type Buffer struct {
	items    map[Index]*Item
	byID     map[id.EventID]Index
	min, max Index
	hasAny   bool
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{
		items: make(map[Index]*Item),
		byID:  make(map[id.EventID]Index),
	}
}

// Len reports how many events the buffer currently holds.
func (b *Buffer) Len() int { return len(b.items) }

// MinIndex and MaxIndex report the buffer's current bounds. Both are
// TimelineEdge when the buffer is empty.
func (b *Buffer) MinIndex() Index {
	if !b.hasAny {
		return TimelineEdge
	}
	return b.min
}

func (b *Buffer) MaxIndex() Index {
	if !b.hasAny {
		return TimelineEdge
	}
	return b.max
}

// AppendNew assigns events indices max+1..max+n, in order. An event
// whose id already exists in the buffer is not renumbered: its content
// is replaced in place only if the new copy differs
// dedup rule for append_new. It returns the items that were newly
// inserted (not the ones that were merely updated or dropped), in the
// order the caller should signal about_to_add/added for.
func (b *Buffer) AppendNew(events []*event.Event) []*Item {
	var inserted []*Item
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		if existingIdx, ok := b.byID[ev.ID]; ok {
			b.mergeInPlace(existingIdx, ev)
			continue
		}
		var idx Index
		if b.hasAny {
			idx = b.max + 1
		} else {
			idx = 0
			b.hasAny = true
			b.min = idx
		}
		item := &Item{Index: idx, Event: ev}
		b.items[idx] = item
		b.byID[ev.ID] = idx
		b.max = idx
		inserted = append(inserted, item)
	}
	return inserted
}

// PrependHistorical assigns events indices min-n..min-1, with the
// oldest event of the batch ending up at the lowest index (i.e. events
// is reversed relative to insertion order). Duplicates are dropped, not
// renumbered and not merged: distinguishes prepend's
// duplicate handling ("dropped") from append's ("update in place").
func (b *Buffer) PrependHistorical(events []*event.Event) []*Item {
	fresh := make([]*event.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		if _, ok := b.byID[ev.ID]; ok {
			continue
		}
		fresh = append(fresh, ev)
	}

	inserted := make([]*Item, 0, len(fresh))
	// fresh is newest-first (as delivered by /messages backfill); walk it
	// in order so each older event takes the next lower index and the
	// oldest event lands at the lowest index.
	for _, ev := range fresh {
		var idx Index
		if b.hasAny {
			idx = b.min - 1
		} else {
			idx = 0
			b.hasAny = true
			b.max = idx
		}
		item := &Item{Index: idx, Event: ev}
		b.items[idx] = item
		b.byID[ev.ID] = idx
		b.min = idx
		inserted = append(inserted, item)
	}
	return inserted
}

func (b *Buffer) mergeInPlace(idx Index, updated *event.Event) {
	existing := b.items[idx]
	if eventsEqual(existing.Event, updated) {
		return
	}
	// Preserve identity/index; only the content-bearing fields change.
	replacement := *updated
	replacement.ID = existing.Event.ID
	existing.Event = &replacement
}

func eventsEqual(a, b *event.Event) bool {
	if a.Type.Type != b.Type.Type || a.Sender != b.Sender {
		return false
	}
	return string(a.RawContent) == string(b.RawContent)
}

// FindByIndex is the O(1) index lookup.
func (b *Buffer) FindByIndex(idx Index) (*Item, bool) {
	item, ok := b.items[idx]
	return item, ok
}

// FindByID is the id lookup, backed by the side index maintained
// alongside items for redaction and dedup lookups.
func (b *Buffer) FindByID(eventID id.EventID) (*Item, bool) {
	idx, ok := b.byID[eventID]
	if !ok {
		return nil, false
	}
	return b.items[idx], true
}

// Redact replaces the content of the event with the given id with a
// tombstone marker, preserving its index and position so a redaction
// arriving mid-batch doesn't disturb events around it.
func (b *Buffer) Redact(eventID id.EventID, tombstone *event.Event) bool {
	idx, ok := b.byID[eventID]
	if !ok {
		return false
	}
	tombstone.ID = eventID
	b.items[idx].Event = tombstone
	return true
}

// Ascending returns all items in chronological (increasing-index) order.
// Callers doing hot-path iteration over a large timeline should prefer
// ReverseFrom, which does not sort a snapshot slice.
func (b *Buffer) Ascending() []*Item {
	out := make([]*Item, 0, len(b.items))
	for _, item := range b.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ReverseFrom returns an iterator function starting at index start and
// walking backward. Calling the returned function repeatedly yields
// each item and true, then (nil, false) once it runs past the oldest
// event. This is the canonical cursor for
// read-marker computations.
func (b *Buffer) ReverseFrom(start Index) func() (*Item, bool) {
	cur := start
	return func() (*Item, bool) {
		for cur >= b.min && b.hasAny {
			item, ok := b.items[cur]
			cur--
			if ok {
				return item, true
			}
		}
		return nil, false
	}
}
