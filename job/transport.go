// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package job

import "context"

// Verb is an HTTP method. A named type instead of a bare string keeps
// Request construction sites self-documenting, the way net/http's
// http.MethodGet-style constants do.
type Verb string

const (
	GET    Verb = "GET"
	POST   Verb = "POST"
	PUT    Verb = "PUT"
	DELETE Verb = "DELETE"
)

// Request is the wire-transport-agnostic description of one HTTP call.
// Transport implementations turn this into an actual request; the codec
// (see codec.go) turns Body into bytes.
type Request struct {
	Verb  Verb
	Path  string
	Query map[string]string
	// Body is the value to encode as the request payload, or nil for none.
	Body any
	// RawBody and ContentType are used instead of Body for uploads that
	// aren't JSON (media upload, thumbnailing).
	RawBody     []byte
	ContentType string
	// NeedsToken controls whether the transport attaches
	// "Authorization: Bearer <token>". Defaults to true.
	NeedsToken bool
	// AccessToken is filled in by the connection before Start; transports
	// never source it themselves.
	AccessToken string
}

// Response is what a Transport hands back for a completed HTTP call. It
// is transport-agnostic: everything above this layer works with bytes and
// a status code, never *http.Response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport is the pluggable HTTP execution boundary. Do
// executes one request; Priority hints how the transport should schedule
// it relative to other in-flight requests.
type Transport interface {
	Do(ctx context.Context, req Request, priority Priority) (Response, error)
}

// Priority mirrors Policy but lives on the transport boundary so a
// transport implementation doesn't need to import the job package's
// higher-level Policy type.
type Priority int

const (
	PriorityForeground Priority = iota
	PriorityBackground
)
