// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package statecache

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mxclient.dev/mxclient/id"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json.gz")

	snap := Snapshot{
		NextBatch: "s1",
		Rooms: []RoomSnapshot{
			{ID: "!a:s", JoinState: "join", State: []json.RawMessage{[]byte(`{"type":"m.room.name"}`)}},
		},
		DirectChats:  map[id.UserID][]id.RoomID{"@friend:s": {"!dm:s"}},
		IgnoredUsers: []id.UserID{"@spammer:s"},
	}

	require.NoError(t, Save(path, snap))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, loaded.Version)
	assert.Equal(t, snap.NextBatch, loaded.NextBatch)
	require.Len(t, loaded.Rooms, 1)
	assert.Equal(t, id.RoomID("!a:s"), loaded.Rooms[0].ID)
	assert.Equal(t, []id.RoomID{"!dm:s"}, loaded.DirectChats["@friend:s"])
	assert.Contains(t, loaded.IgnoredUsers, id.UserID("@spammer:s"))
}

func TestLoad_MissingFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	loaded, err := Load(filepath.Join(dir, "does-not-exist.json.gz"))
	require.NoError(t, err)
	assert.Equal(t, Snapshot{}, loaded)
}

func TestLoad_UnknownVersionRefuses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json.gz")
	require.NoError(t, Save(path, Snapshot{NextBatch: "s1"}))

	// Corrupt the version by writing a differently-versioned document.
	future := Snapshot{Version: CurrentVersion + 1, NextBatch: "s1"}
	doc, err := buildDocument(future)
	require.NoError(t, err)

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	_, err = gz.Write(doc)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, compressed.Bytes(), 0o600))

	_, err = Load(path)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
