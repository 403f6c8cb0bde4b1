// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package statecache persists and restores the durable slice of a
// Connection's state — room state events, the direct-chat map, ignored
// users, and the last sync cursor — as a single versioned,
// gzip-compressed JSON document. Timelines are never persisted.
package statecache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"go.mxclient.dev/mxclient/id"
)

// CurrentVersion is the schema version this package writes and the only
// one it will load.
const CurrentVersion = 1

// ErrUnsupportedVersion is returned by Load when the document's version
// field doesn't match CurrentVersion. The caller must treat this as
// "no cache", not attempt a partial migration.
var ErrUnsupportedVersion = errors.New("statecache: unsupported schema version")

// RoomSnapshot is the persisted slice of one room: its join state and
// its full set of state events (not its timeline).
type RoomSnapshot struct {
	ID        id.RoomID         `json:"id"`
	JoinState string            `json:"join_state"`
	State     []json.RawMessage `json:"state"`
}

// Snapshot is the full document persisted by Save and produced by Load.
type Snapshot struct {
	Version      int                       `json:"version"`
	NextBatch    id.BatchToken             `json:"next_batch"`
	Rooms        []RoomSnapshot            `json:"rooms"`
	DirectChats  map[id.UserID][]id.RoomID `json:"direct_chats,omitempty"`
	IgnoredUsers []id.UserID               `json:"ignored_users,omitempty"`
}

// DefaultPath derives a cache file path from a user id, replacing ':'
// with '_' since it's not a safe path character on every platform.
func DefaultPath(dir string, userID id.UserID) string {
	safe := make([]byte, len(userID))
	for i := 0; i < len(userID); i++ {
		if userID[i] == ':' {
			safe[i] = '_'
		} else {
			safe[i] = userID[i]
		}
	}
	return filepath.Join(dir, string(safe)+".json.gz")
}

// Save writes snap to path atomically: it's built as JSON via
// gjson/sjson, gzip-compressed, written to a temp file next to path and
// renamed into place, so a crash mid-write never corrupts an existing
// cache.
func Save(path string, snap Snapshot) error {
	snap.Version = CurrentVersion
	doc, err := buildDocument(snap)
	if err != nil {
		return fmt.Errorf("statecache: building document: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(doc); err != nil {
		return fmt.Errorf("statecache: compressing: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("statecache: compressing: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statecache-*.tmp")
	if err != nil {
		return fmt.Errorf("statecache: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("statecache: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statecache: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("statecache: renaming into place: %w", err)
	}
	return nil
}

// buildDocument assembles the document by successive sjson.SetBytes
// calls rather than one json.Marshal, so a future field can be appended
// without needing every field to round-trip through Go structs first —
// the same incremental-document style the wire format itself uses.
func buildDocument(snap Snapshot) ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	if doc, err = sjson.SetBytes(doc, "version", snap.Version); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "next_batch", string(snap.NextBatch)); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "rooms", snap.Rooms); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "direct_chats", snap.DirectChats); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "ignored_users", snap.IgnoredUsers); err != nil {
		return nil, err
	}
	return doc, nil
}

// Load restores a Snapshot from path. A missing file is not an error:
// it returns a zero Snapshot and nil, matching load_state's documented
// no-op-if-missing behavior. A file with an unrecognized version
// returns ErrUnsupportedVersion and a zero Snapshot; the caller is
// expected to log and continue with an empty cache rather than attempt
// a partial load.
func Load(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("statecache: opening: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("statecache: decompressing: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return Snapshot{}, fmt.Errorf("statecache: reading: %w", err)
	}

	version := gjson.GetBytes(raw, "version")
	if !version.Exists() || int(version.Int()) != CurrentVersion {
		return Snapshot{}, ErrUnsupportedVersion
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("statecache: parsing: %w", err)
	}
	return snap, nil
}
