// Copyright (c) 2023 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package job

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// HTTPTransport is the default Transport: it executes requests with
// net/http against a single homeserver base URL. Foreground requests run
// immediately; background requests (sync, thumbnails) first acquire a
// weighted semaphore slot, so a burst of background work never starves a
// foreground request competing for the same underlying connection pool.
type HTTPTransport struct {
	BaseURL    string
	HTTPClient *http.Client

	backgroundSlots *semaphore.Weighted
}

// NewHTTPTransport builds a transport against baseURL (e.g.
// "https://matrix.example.org") with backgroundConcurrency background
// requests allowed in flight at once.
func NewHTTPTransport(baseURL string, backgroundConcurrency int64) *HTTPTransport {
	if backgroundConcurrency <= 0 {
		backgroundConcurrency = 2
	}
	return &HTTPTransport{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		HTTPClient:      &http.Client{Timeout: 2 * time.Minute},
		backgroundSlots: semaphore.NewWeighted(backgroundConcurrency),
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request, priority Priority) (Response, error) {
	if priority == PriorityBackground {
		if err := t.backgroundSlots.Acquire(ctx, 1); err != nil {
			return Response{}, err
		}
		defer t.backgroundSlots.Release(1)
	}

	httpReq, err := t.compile(ctx, req)
	if err != nil {
		return Response{}, err
	}
	resp, err := t.HTTPClient.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func (t *HTTPTransport) compile(ctx context.Context, req Request) (*http.Request, error) {
	u := t.BaseURL + req.Path
	if len(req.Query) > 0 {
		values := url.Values{}
		for k, v := range req.Query {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	var bodyReader io.Reader
	contentType := req.ContentType
	if req.RawBody != nil {
		bodyReader = bytes.NewReader(req.RawBody)
	} else if req.Body != nil {
		encoded, err := DefaultCodec{}.Encode(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Verb), u, bodyReader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.NeedsToken && req.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	}
	return httpReq, nil
}
