// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mxclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type wellKnownClient struct {
	Homeserver struct {
		BaseURL string `json:"base_url"`
	} `json:"m.homeserver"`
}

// DiscoverHomeserver implements well-known client discovery: GET
// https://<domain>/.well-known/matrix/client; a non-200 response or a
// missing m.homeserver.base_url is a failure; the returned base URL has
// its trailing slash trimmed.
func DiscoverHomeserver(ctx context.Context, domain string) (string, error) {
	url := fmt.Sprintf("https://%s/.well-known/matrix/client", domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching well-known: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("well-known lookup for %s returned HTTP %d", domain, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading well-known response: %w", err)
	}

	base, err := parseWellKnownBody(body)
	if err != nil {
		return "", fmt.Errorf("well-known response for %s: %w", domain, err)
	}
	return base, nil
}

func parseWellKnownBody(body []byte) (string, error) {
	var doc wellKnownClient
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parsing well-known response: %w", err)
	}
	if doc.Homeserver.BaseURL == "" {
		return "", fmt.Errorf("missing m.homeserver.base_url")
	}
	return strings.TrimRight(doc.Homeserver.BaseURL, "/"), nil
}
