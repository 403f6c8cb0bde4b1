// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
)

func msg(eventID, sender, body string) *event.Event {
	return &event.Event{
		Type:       event.EventMessage,
		ID:         id.EventID(eventID),
		Sender:     id.UserID(sender),
		RawContent: []byte(`{"body":"` + body + `","msgtype":"m.text"}`),
	}
}

func TestBuffer_AppendAssignsContiguousIndices(t *testing.T) {
	b := New()
	inserted := b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi"), msg("$e2", "@u:s", "there")})
	require.Len(t, inserted, 2)
	assert.Equal(t, Index(0), inserted[0].Index)
	assert.Equal(t, Index(1), inserted[1].Index)
	assert.Equal(t, Index(0), b.MinIndex())
	assert.Equal(t, Index(1), b.MaxIndex())
}

func TestBuffer_AppendDuplicateDropsButMerges(t *testing.T) {
	// applying the same event id twice keeps the index assigned on
	// first insertion.
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi")})
	inserted := b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi")})
	assert.Empty(t, inserted, "identical duplicate should not be reported as newly inserted")
	assert.Equal(t, 1, b.Len())

	item, ok := b.FindByID("$e1")
	require.True(t, ok)
	assert.Equal(t, Index(0), item.Index)
}

func TestBuffer_AppendDuplicateWithDifferentContentUpdatesInPlace(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi")})
	edited := msg("$e1", "@u:s", "hi edited")
	b.AppendNew([]*event.Event{edited})

	assert.Equal(t, 1, b.Len(), "index should be preserved, not renumbered")
	item, ok := b.FindByID("$e1")
	require.True(t, ok)
	assert.Equal(t, Index(0), item.Index)
	assert.Contains(t, string(item.Event.RawContent), "edited")
}

func TestBuffer_PrependAssignsDecreasingIndicesOldestLowest(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e10", "@u:s", "latest")})

	// backfill delivers newest-first, as /messages does.
	historical := []*event.Event{msg("$e9", "@u:s", "b"), msg("$e8", "@u:s", "a")}
	inserted := b.PrependHistorical(historical)
	require.Len(t, inserted, 2)

	oldest, ok := b.FindByID("$e8")
	require.True(t, ok)
	newer, ok := b.FindByID("$e9")
	require.True(t, ok)
	assert.Less(t, int64(oldest.Index), int64(newer.Index))
	assert.Equal(t, oldest.Index, b.MinIndex())
}

func TestBuffer_PrependDropsDuplicatesWithoutRenumbering(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi")})
	inserted := b.PrependHistorical([]*event.Event{msg("$e1", "@u:s", "hi")})
	assert.Empty(t, inserted)
	assert.Equal(t, 1, b.Len())
}

func TestBuffer_FindByIndexAndID(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi")})
	byIdx, ok := b.FindByIndex(0)
	require.True(t, ok)
	byID, ok := b.FindByID("$e1")
	require.True(t, ok)
	assert.Same(t, byIdx, byID)
}

func TestBuffer_RedactPreservesIndex(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "hi"), msg("$e2", "@u:s", "bye")})
	ok := b.Redact("$e1", &event.Event{Type: event.EventRedaction, RawContent: []byte(`{}`)})
	require.True(t, ok)

	item, ok := b.FindByID("$e1")
	require.True(t, ok)
	assert.Equal(t, Index(0), item.Index)
	assert.Equal(t, event.EventRedaction.Type, item.Event.Type.Type)
}

func TestBuffer_ReverseFromWalksToSentinel(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "a"), msg("$e2", "@u:s", "b"), msg("$e3", "@u:s", "c")})

	next := b.ReverseFrom(b.MaxIndex())
	var order []string
	for {
		item, ok := next()
		if !ok {
			break
		}
		order = append(order, string(item.Event.ID))
	}
	assert.Equal(t, []string{"$e3", "$e2", "$e1"}, order)
}

func TestBuffer_AscendingIsChronological(t *testing.T) {
	b := New()
	b.AppendNew([]*event.Event{msg("$e1", "@u:s", "a")})
	b.PrependHistorical([]*event.Event{msg("$e0", "@u:s", "z")})
	b.AppendNew([]*event.Event{msg("$e2", "@u:s", "b")})

	var order []string
	for _, item := range b.Ascending() {
		order = append(order, string(item.Event.ID))
	}
	assert.Equal(t, []string{"$e0", "$e1", "$e2"}, order)
}
