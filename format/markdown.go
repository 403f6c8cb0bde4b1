// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package format renders outgoing message bodies from markdown to the
// HTML subset Matrix clients are expected to display, for
// room.Room.PostMarkdown.
package format

import (
	"strings"

	"github.com/yuin/goldmark"
)

var renderer = goldmark.New()

// RenderMarkdown converts body from markdown to HTML. A render failure
// (goldmark's own encoder never fails on valid UTF-8 input, but the
// interface can) falls back to the escaped plain body rather than
// dropping the message.
func RenderMarkdown(body string) string {
	var buf strings.Builder
	if err := renderer.Convert([]byte(body), &buf); err != nil {
		return body
	}
	return strings.TrimSpace(buf.String())
}
