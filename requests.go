// Copyright (c) 2024 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package mxclient

import (
	"context"
	"fmt"
	"net/url"

	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/job"
)

const (
	clientPathR0       = "/_matrix/client/r0"
	clientPathUnstable = "/_matrix/client/unstable"
	mediaPathR0        = "/_matrix/media/r0"
)

type respLogin struct {
	UserID      id.UserID   `json:"user_id"`
	DeviceID    id.DeviceID `json:"device_id"`
	AccessToken string      `json:"access_token"`
}

type respCreateRoom struct {
	RoomID id.RoomID `json:"room_id"`
}

type respJoinRoom struct {
	RoomID id.RoomID `json:"room_id"`
}

type respMessages struct {
	Start string            `json:"start"`
	End   string            `json:"end"`
	Chunk []event.Event     `json:"chunk"`
	State []event.Event     `json:"state,omitempty"`
}

func (c *Connection) newLoginJob(userOrID, password, deviceName string, deviceID id.DeviceID) *job.Job {
	j := job.New(job.POST, clientPathR0+"/login")
	j.Request.NeedsToken = false
	j.Request.Body = map[string]any{
		"type": "m.login.password",
		"identifier": map[string]string{
			"type": "m.id.user",
			"user": userOrID,
		},
		"password":                   password,
		"initial_device_display_name": deviceName,
		"device_id":                  string(deviceID),
	}
	return j
}

func (c *Connection) newLogoutJob() *job.Job {
	j := job.New(job.POST, clientPathR0+"/logout")
	j.Request.AccessToken = c.AccessToken()
	return j
}

func (c *Connection) newCreateRoomJob(invite id.UserID) *job.Job {
	j := job.New(job.POST, clientPathR0+"/createRoom")
	j.Request.AccessToken = c.AccessToken()
	j.Request.Body = map[string]any{
		"is_direct": true,
		"preset":    "trusted_private_chat",
		"invite":    []id.UserID{invite},
	}
	return j
}

// JoinRoom implements /rooms/{id}/join for a resolvable room id, or
// /join/{alias} when given an alias instead.
func (c *Connection) JoinRoom(ctx context.Context, roomIDOrAlias string) *job.Job {
	var path string
	if len(roomIDOrAlias) > 0 && roomIDOrAlias[0] == '#' {
		path = fmt.Sprintf("%s/join/%s", clientPathR0, url.PathEscape(roomIDOrAlias))
	} else {
		path = fmt.Sprintf("%s/rooms/%s/join", clientPathR0, url.PathEscape(roomIDOrAlias))
	}
	j := job.New(job.POST, path)
	j.Request.AccessToken = c.AccessToken()
	var resp respJoinRoom
	j.ParseSuccess = func(body []byte, codec job.Codec) error { return codec.Decode(body, &resp) }
	j.OnSuccess(func(job.Status) {
		roomID := resp.RoomID
		if roomID == "" {
			roomID = id.RoomID(roomIDOrAlias)
		}
		c.Rooms.ApplyJoin(roomID)
	})
	j.OnFailure(func(job.Status) { c.requestFailed.Emit(j) })
	j.Start(ctx, c.transport, job.Foreground)
	return j
}

func (c *Connection) newLeaveJob(roomID id.RoomID) *job.Job {
	j := job.New(job.POST, fmt.Sprintf("%s/rooms/%s/leave", clientPathR0, url.PathEscape(string(roomID))))
	j.Request.AccessToken = c.AccessToken()
	return j
}

func (c *Connection) newForgetJob(roomID id.RoomID) *job.Job {
	j := job.New(job.POST, fmt.Sprintf("%s/rooms/%s/forget", clientPathR0, url.PathEscape(string(roomID))))
	j.Request.AccessToken = c.AccessToken()
	return j
}

func (c *Connection) newSendJob(roomID id.RoomID, eventType event.Type, content any) *job.Job {
	txnID := c.txnGen.next()
	path := fmt.Sprintf("%s/rooms/%s/send/%s/%s", clientPathR0, url.PathEscape(string(roomID)), url.PathEscape(eventType.Type), url.PathEscape(txnID))
	j := job.New(job.PUT, path)
	j.Request.AccessToken = c.AccessToken()
	j.Request.Body = content
	return j
}

func (c *Connection) newReceiptJob(roomID id.RoomID, eventID id.EventID) *job.Job {
	path := fmt.Sprintf("%s/rooms/%s/receipt/m.read/%s", clientPathR0, url.PathEscape(string(roomID)), url.PathEscape(string(eventID)))
	j := job.New(job.POST, path)
	j.Request.AccessToken = c.AccessToken()
	j.Request.Body = map[string]any{}
	return j
}

func (c *Connection) newMessagesJob(roomID id.RoomID, from id.BatchToken, limit int) *job.Job {
	path := fmt.Sprintf("%s/rooms/%s/messages", clientPathR0, url.PathEscape(string(roomID)))
	j := job.New(job.GET, path)
	j.Request.AccessToken = c.AccessToken()
	j.Request.Query = map[string]string{
		"dir":   "b",
		"limit": fmt.Sprintf("%d", limit),
	}
	if from != "" {
		j.Request.Query["from"] = string(from)
	}
	var resp respMessages
	j.ParseSuccess = func(body []byte, codec job.Codec) error { return codec.Decode(body, &resp) }
	j.OnSuccess(func(job.Status) {
		if r, ok := c.Rooms.Room(roomID); ok {
			events := make([]*event.Event, len(resp.Chunk))
			for i := range resp.Chunk {
				e := resp.Chunk[i]
				events[i] = &e
			}
			r.ApplyHistoricalTimeline(events)
			r.SetPrevBatch(id.BatchToken(resp.End))
		}
	})
	return j
}

// GetMembers implements /rooms/{id}/members: a one-shot fetch of the
// full membership list, useful after joining a large room where /sync
// only delivered a lazy-loaded subset.
func (c *Connection) GetMembers(ctx context.Context, roomID id.RoomID) *job.Job {
	path := fmt.Sprintf("%s/rooms/%s/members", clientPathR0, url.PathEscape(string(roomID)))
	j := job.New(job.GET, path)
	j.Request.AccessToken = c.AccessToken()
	var resp struct {
		Chunk []event.Event `json:"chunk"`
	}
	j.ParseSuccess = func(body []byte, codec job.Codec) error { return codec.Decode(body, &resp) }
	j.OnSuccess(func(job.Status) {
		if r, ok := c.Rooms.Room(roomID); ok {
			events := make([]*event.Event, len(resp.Chunk))
			for i := range resp.Chunk {
				e := resp.Chunk[i]
				events[i] = &e
			}
			r.ApplyState(events)
		}
	})
	j.Start(ctx, c.transport, job.Background)
	return j
}

// GetContext implements /rooms/{id}/context/{event}: the events
// surrounding a single event id, e.g. for a permalink or search result.
func (c *Connection) GetContext(ctx context.Context, roomID id.RoomID, eventID id.EventID, limit int) *job.Job {
	path := fmt.Sprintf("%s/rooms/%s/context/%s", clientPathR0, url.PathEscape(string(roomID)), url.PathEscape(string(eventID)))
	j := job.New(job.GET, path)
	j.Request.AccessToken = c.AccessToken()
	j.Request.Query = map[string]string{"limit": fmt.Sprintf("%d", limit)}
	j.Start(ctx, c.transport, job.Background)
	return j
}

// UploadMedia implements /media/upload for raw bytes with the given
// content-type.
func (c *Connection) UploadMedia(ctx context.Context, data []byte, contentType string) *job.Job {
	j := job.New(job.POST, mediaPathR0+"/upload")
	j.Request.AccessToken = c.AccessToken()
	j.Request.RawBody = data
	j.Request.ContentType = contentType
	j.Start(ctx, c.transport, job.Background)
	return j
}

// DownloadMedia implements /media/download/{server}/{mediaId}.
func (c *Connection) DownloadMedia(ctx context.Context, uri id.ContentURI) *job.Job {
	path := fmt.Sprintf("%s/download/%s/%s", mediaPathR0, url.PathEscape(uri.Homeserver), url.PathEscape(uri.FileID))
	j := job.New(job.GET, path)
	j.Request.NeedsToken = false
	j.Start(ctx, c.transport, job.Background)
	return j
}

// ThumbnailMedia implements /media/thumbnail/{server}/{mediaId}.
func (c *Connection) ThumbnailMedia(ctx context.Context, uri id.ContentURI, width, height int) *job.Job {
	path := fmt.Sprintf("%s/thumbnail/%s/%s", mediaPathR0, url.PathEscape(uri.Homeserver), url.PathEscape(uri.FileID))
	j := job.New(job.GET, path)
	j.Request.NeedsToken = false
	j.Request.Query = map[string]string{
		"width":  fmt.Sprintf("%d", width),
		"height": fmt.Sprintf("%d", height),
	}
	j.Start(ctx, c.transport, job.Background)
	return j
}

// UploadKeys implements /keys/upload. The core runtime never fills in
// the device or one-time keys itself; callers (or a KeyUploader)
// provide the payload the E2EE layer computed.
func (c *Connection) UploadKeys(ctx context.Context, payload map[string]any) *job.Job {
	j := job.New(job.POST, clientPathR0+"/keys/upload")
	j.Request.AccessToken = c.AccessToken()
	j.Request.Body = payload
	j.Start(ctx, c.transport, job.Background)
	return j
}

// SendToDevice implements /sendToDevice/{eventType}/{txn}.
func (c *Connection) SendToDevice(ctx context.Context, eventType string, messages map[id.UserID]map[id.DeviceID]any) *job.Job {
	txnID := c.txnGen.next()
	path := fmt.Sprintf("%s/sendToDevice/%s/%s", clientPathR0, url.PathEscape(eventType), url.PathEscape(txnID))
	j := job.New(job.PUT, path)
	j.Request.AccessToken = c.AccessToken()
	j.Request.Body = map[string]any{"messages": messages}
	j.Start(ctx, c.transport, job.Foreground)
	return j
}
