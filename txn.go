// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mxclient

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"
)

// txnGenerator produces the opaque transaction ids required by
// /send and /sendToDevice: a nonce generated once per generator (each
// Connection owns one), combined with that generator's monotonically
// increasing counter, formatted as "<nonce>.<counter>". Generators in the
// same process do not share a nonce.
type txnGenerator struct {
	nonce   xid.ID
	counter atomic.Uint64
}

func newTxnGenerator() *txnGenerator {
	return &txnGenerator{nonce: xid.New()}
}

func (g *txnGenerator) next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s.%d", g.nonce.String(), n)
}
