// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package room

// JoinState is the coarse membership state of a Room object.
type JoinState int

const (
	None JoinState = iota
	Invite
	Join
	Leave
)

func (s JoinState) String() string {
	switch s {
	case Invite:
		return "invite"
	case Join:
		return "join"
	case Leave:
		return "leave"
	default:
		return "none"
	}
}
