// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// mxtui is a small interactive terminal client: it logs into a
// homeserver, joins the sync loop, and shows the joined room list next
// to the selected room's timeline. It exists to exercise the runtime
// end to end, not as a full-featured client.
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
		verbose    bool
	)

	flags := pflag.NewFlagSet("mxtui", pflag.ExitOnError)
	flags.StringVar(&homeserver, "homeserver", "", "homeserver base URL (leave empty to discover via well-known)")
	flags.StringVar(&userID, "user", "", "Matrix user id, e.g. @alice:example.org")
	flags.StringVar(&password, "password", "", "account password (mutually exclusive with --token)")
	flags.StringVar(&token, "token", "", "existing access token (skips password login)")
	flags.StringVar(&deviceID, "device-id", "", "device id to use or reuse")
	flags.StringVar(&cacheDir, "cache-dir", ".", "directory for the session state cache")
	flags.BoolVar(&verbose, "verbose", false, "log to stderr instead of staying quiet")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	log := zerolog.Nop()
	if verbose {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	conn := mxclient.New(homeserver, mxclient.WithLogger(log), mxclient.WithCacheDir(cacheDir))

	failed := make(chan error, 1)
	conn.OnLoginError(func(e mxclient.LoginError) { failed <- fmt.Errorf("login failed: %s", e.Message) })
	conn.OnResolveError(func(e mxclient.ResolveError) { failed <- fmt.Errorf("could not resolve %s: %s", e.Domain, e.Message) })

	connected := make(chan struct{})
	var once bool
	conn.OnStateChanged(func(s mxclient.State) {
		if s == mxclient.Connected && !once {
			once = true
			close(connected)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if token != "" {
		conn.ConnectWithToken(ctx, id.UserID(userID), token, id.DeviceID(deviceID))
	} else {
		if password == "" {
			return fmt.Errorf("either --token or --password is required")
		}
		conn.ConnectToServer(ctx, userID, password, "mxtui", id.DeviceID(deviceID))
	}

	select {
	case err := <-failed:
		return err
	case <-connected:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting to connect")
	}

	defer func() {
		logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer logoutCancel()
		conn.Logout(logoutCtx)
		_ = conn.SaveState()
	}()

	return runProgram(ctx, conn)
}
