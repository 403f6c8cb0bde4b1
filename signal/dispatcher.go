// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package signal implements the synchronous subscribe/unsubscribe
// notification primitive used across the room, connection and job
// components. It generalizes the handler-map-plus-emit pattern common
// to event-processing loops, minus the transaction-queue plumbing that
// only an application service needs.
package signal

import (
	"sort"
	"sync"
)

// Token identifies one subscription so it can be removed later.
type Token uint64

// Dispatcher fans a value of type T out to every subscribed handler, in
// subscription order, synchronously on the calling goroutine. It has no
// buffering and no goroutines of its own: callers that want async
// dispatch wrap their handler in a `go` themselves.
type Dispatcher[T any] struct {
	mu       sync.Mutex
	next     Token
	handlers map[Token]func(T)
	once     map[Token]bool
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher[T any]() *Dispatcher[T] {
	return &Dispatcher[T]{
		handlers: make(map[Token]func(T)),
		once:     make(map[Token]bool),
	}
}

// Subscribe registers handler to be called on every future Emit. The
// returned Token can be passed to Unsubscribe.
func (d *Dispatcher[T]) Subscribe(handler func(T)) Token {
	return d.add(handler, false)
}

// SubscribeOnce registers handler to fire exactly once: it self-removes
// after its first invocation, matching the "single-shot" observer pattern
// calls out (e.g. waiting for one room's first loaded state).
func (d *Dispatcher[T]) SubscribeOnce(handler func(T)) Token {
	return d.add(handler, true)
}

func (d *Dispatcher[T]) add(handler func(T), once bool) Token {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	tok := d.next
	d.handlers[tok] = handler
	if once {
		d.once[tok] = true
	}
	return tok
}

// Unsubscribe removes a handler. It is a no-op if tok is unknown or was
// already removed (including by a single-shot firing).
func (d *Dispatcher[T]) Unsubscribe(tok Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, tok)
	delete(d.once, tok)
}

// Emit calls every current subscriber with value, in subscription order.
// Single-shot subscribers are removed before their handler runs, so a
// handler that re-subscribes itself doesn't observe its own registration
// mid-Emit.
func (d *Dispatcher[T]) Emit(value T) {
	d.mu.Lock()
	tokens := make([]Token, 0, len(d.handlers))
	for tok := range d.handlers {
		tokens = append(tokens, tok)
	}
	// Deterministic order keeps Emit reproducible across runs.
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	handlers := make([]func(T), 0, len(tokens))
	for _, tok := range tokens {
		handlers = append(handlers, d.handlers[tok])
		if d.once[tok] {
			delete(d.handlers, tok)
			delete(d.once, tok)
		}
	}
	d.mu.Unlock()

	for _, handler := range handlers {
		handler(value)
	}
}

// Len returns the number of currently active subscriptions, mainly for
// tests that assert single-shot handlers actually self-remove.
func (d *Dispatcher[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}
