// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package id

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidContentURI = errors.New("invalid Matrix content URI")

// A ContentURIString is the unparsed mxc:// form of a ContentURI, kept as
// a distinct string type so it round-trips through JSON without forcing a
// parse on every event that merely carries an avatar or file reference.
type ContentURIString string

func (uriString ContentURIString) Parse() (ContentURI, error) {
	return ParseContentURI(string(uriString))
}

// ContentURI is a parsed mxc:// reference: the homeserver that holds the
// file and the opaque media ID on that server.
type ContentURI struct {
	Homeserver string
	FileID     string
}

func ParseContentURI(uri string) (parsed ContentURI, err error) {
	if !strings.HasPrefix(uri, "mxc://") {
		return ContentURI{}, ErrInvalidContentURI
	}
	rest := uri[len("mxc://"):]
	idx := strings.IndexByte(rest, '/')
	if idx == -1 || idx == len(rest)-1 {
		return ContentURI{}, ErrInvalidContentURI
	}
	parsed.Homeserver = rest[:idx]
	parsed.FileID = rest[idx+1:]
	return parsed, nil
}

func (uri *ContentURI) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s == "" {
		*uri = ContentURI{}
		return nil
	}
	parsed, err := ParseContentURI(s)
	if err != nil {
		return err
	}
	*uri = parsed
	return nil
}

func (uri ContentURI) MarshalJSON() ([]byte, error) {
	return json.Marshal(uri.String())
}

func (uri ContentURI) String() string {
	if uri.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("mxc://%s/%s", uri.Homeserver, uri.FileID)
}

func (uri ContentURI) CUString() ContentURIString {
	return ContentURIString(uri.String())
}

func (uri ContentURI) IsEmpty() bool {
	return len(uri.Homeserver) == 0 || len(uri.FileID) == 0
}
