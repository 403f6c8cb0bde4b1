// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// mxdemo is a non-interactive smoke test for the runtime: it logs in,
// waits for the first sync, lists joined rooms, optionally posts one
// message, and exits. Useful for scripting and for verifying a
// homeserver connection without a terminal UI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"go.mxclient.dev/mxclient"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/job"
	"go.mxclient.dev/mxclient/syncdata"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		homeserver string
		userID     string
		password   string
		token      string
		deviceID   string
		cacheDir   string
		postRoom   string
		postBody   string
		timeout    time.Duration
	)

	flags := pflag.NewFlagSet("mxdemo", pflag.ExitOnError)
	flags.StringVar(&homeserver, "homeserver", "", "homeserver base URL (leave empty to discover via well-known)")
	flags.StringVar(&userID, "user", "", "Matrix user id, e.g. @alice:example.org")
	flags.StringVar(&password, "password", "", "account password (mutually exclusive with --token)")
	flags.StringVar(&token, "token", "", "existing access token (skips password login)")
	flags.StringVar(&deviceID, "device-id", "", "device id to use or reuse")
	flags.StringVar(&cacheDir, "cache-dir", ".", "directory for the session state cache")
	flags.StringVar(&postRoom, "post-room", "", "room id to post --post-body into after sync")
	flags.StringVar(&postBody, "post-body", "", "markdown body to post into --post-room")
	flags.DurationVar(&timeout, "timeout", 20*time.Second, "how long to wait for the first sync")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	conn := mxclient.New(homeserver, mxclient.WithLogger(log), mxclient.WithCacheDir(cacheDir))

	failed := make(chan error, 1)
	conn.OnLoginError(func(e mxclient.LoginError) { failed <- fmt.Errorf("login failed: %s", e.Message) })
	conn.OnResolveError(func(e mxclient.ResolveError) { failed <- fmt.Errorf("could not resolve %s: %s", e.Domain, e.Message) })
	conn.OnRequestFailed(func(j *job.Job) { log.Warn().Str("job", j.ID.String()).Msg("background request failed") })

	synced := make(chan struct{})
	var once bool
	conn.OnStateChanged(func(s mxclient.State) {
		// Subscribed here, not at the top: conn.Sync only exists once
		// login has succeeded, and this handler runs synchronously
		// before the sync loop's goroutine is started.
		if s == mxclient.Connected {
			conn.Sync.OnSynced(func(*syncdata.Data) {
				if !once {
					once = true
					close(synced)
				}
			})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if token != "" {
		conn.ConnectWithToken(ctx, id.UserID(userID), token, id.DeviceID(deviceID))
	} else {
		if password == "" {
			return fmt.Errorf("either --token or --password is required")
		}
		conn.ConnectToServer(ctx, userID, password, "mxdemo", id.DeviceID(deviceID))
	}

	select {
	case err := <-failed:
		return err
	case <-synced:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the first sync")
	}

	for _, r := range conn.Rooms.Rooms() {
		fmt.Printf("%s\t%s\t%s\n", r.ID, r.JoinState(), r.DisplayName())
	}

	if postRoom != "" && postBody != "" {
		if r, ok := conn.Rooms.Room(id.RoomID(postRoom)); ok {
			done := make(chan struct{})
			j := r.PostMarkdown(ctx, conn, postBody)
			j.OnResult(func(job.Status) { close(done) })
			<-done
		} else {
			return fmt.Errorf("not a member of room %s", postRoom)
		}
	}

	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer logoutCancel()
	conn.Logout(logoutCtx)
	return conn.SaveState()
}
