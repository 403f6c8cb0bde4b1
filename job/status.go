// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package job implements one HTTP request/response cycle with typed input
// and typed parsed output: construction, retry/backoff,
// background-vs-foreground scheduling, cancellation and observable
// lifecycle events. It's the only package in the module that touches the
// network; every higher-level API is expressed in terms of starting and
// observing a Job.
package job

import "fmt"

// State is the coarse lifecycle stage of a Job.
type State int

const (
	Pending State = iota
	InProgress
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Kind enumerates the ways a Job can fail.1.
type Kind int

const (
	NoError Kind = iota
	NetworkError
	TimeoutError
	JSONParseError
	ContentAccessError
	NotFoundError
	IncorrectRequestError
	IncorrectResponseError
	TooLargeForUpload
	UserDefinedError
	Abandoned
)

func (k Kind) String() string {
	switch k {
	case NoError:
		return "no_error"
	case NetworkError:
		return "network_error"
	case TimeoutError:
		return "timeout_error"
	case JSONParseError:
		return "json_parse_error"
	case ContentAccessError:
		return "content_access_error"
	case NotFoundError:
		return "not_found_error"
	case IncorrectRequestError:
		return "incorrect_request_error"
	case IncorrectResponseError:
		return "incorrect_response_error"
	case TooLargeForUpload:
		return "too_large_for_upload"
	case UserDefinedError:
		return "user_defined_error"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown_error"
	}
}

// Retryable reports whether the job scheduler should retry a failure of
// this kind. Only transient network conditions are retried; everything
// else (bad request, 404, unparseable response, cancellation) is terminal.
func (k Kind) Retryable() bool {
	return k == NetworkError || k == TimeoutError
}

// Status is the outcome of a completed (or in-flight) Job.
type Status struct {
	State   State
	Kind    Kind
	Message string
	// Details holds the decoded error body, if the server sent JSON with
	// its non-2xx response (e.g. a RespError-shaped {errcode, error}).
	Details map[string]any
}

func (s Status) Error() string {
	if s.Message == "" {
		return s.Kind.String()
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// Err returns a Go error for a non-success Status, or nil.
func (s Status) Err() error {
	if s.State == Success || s.Kind == NoError {
		return nil
	}
	return s
}

func Successful() Status { return Status{State: Success, Kind: NoError} }

func Failure(kind Kind, message string, details map[string]any) Status {
	return Status{State: Failed, Kind: kind, Message: message, Details: details}
}
