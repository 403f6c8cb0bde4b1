// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package room

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/user"
)

// memberSorter orders two members by lowercased display name, ties
// broken by MXID.
func memberSorter(a, b *Member) bool {
	an, bn := strings.ToLower(a.User.DisplayName()), strings.ToLower(b.User.DisplayName())
	if an != bn {
		return an < bn
	}
	return a.User.ID < b.User.ID
}

// disambiguatedNames recomputes room_membername for every member: unique
// display names pass through unchanged; names shared by more than one
// member are suffixed with "(<mxid>)".
func disambiguatedNames(members map[id.UserID]*Member) map[id.UserID]string {
	sorted := make([]*Member, 0, len(members))
	for _, m := range members {
		sorted = append(sorted, m)
	}
	slices.SortFunc(sorted, func(a, b *Member) int {
		if memberSorter(a, b) {
			return -1
		}
		if memberSorter(b, a) {
			return 1
		}
		return 0
	})

	counts := make(map[string]int, len(sorted))
	for _, m := range sorted {
		counts[strings.ToLower(m.User.DisplayName())]++
	}

	out := make(map[id.UserID]string, len(sorted))
	for _, m := range sorted {
		name := m.User.DisplayName()
		if name == "" {
			name = string(m.User.ID)
		}
		if counts[strings.ToLower(m.User.DisplayName())] > 1 {
			out[m.User.ID] = fmt.Sprintf("%s (%s)", name, m.User.ID)
		} else {
			out[m.User.ID] = name
		}
	}
	return out
}

// RoomMemberName returns u's disambiguated display name within members,
// applying the same collision rule Room uses internally. It's exported
// standalone (in addition to the per-Room cache in room.go) so callers
// with a bare member set — tests, or a future UI component — can call
// it directly.
func RoomMemberName(u *user.User, members map[id.UserID]*Member) string {
	names := disambiguatedNames(members)
	if name, ok := names[u.ID]; ok {
		return name
	}
	if u.DisplayName() != "" {
		return u.DisplayName()
	}
	return string(u.ID)
}
