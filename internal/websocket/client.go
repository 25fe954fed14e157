// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/sonograph/internal/database"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // clients only send pings
)

// Message types for WebSocket communication
const (
	MessageTypeProgress = "progress"
	MessageTypePing     = "ping"
	MessageTypePong     = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProgressLoader reads a recording's current progress; *database.DB
// satisfies it.
type ProgressLoader interface {
	GetProgress(ctx context.Context, id uuid.UUID) (*models.RecordingProgress, error)
}

// Client streams one recording's progress over a WebSocket connection. It
// sends the current state on connect and again after every change, and
// closes the connection once the analysis reaches a terminal status.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	recordingID uuid.UUID
	loader      ProgressLoader
	pings       chan struct{}
	last        *models.RecordingProgress
}

// NewClient creates a Client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, recordingID uuid.UUID, loader ProgressLoader) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		recordingID: recordingID,
		loader:      loader,
		pings:       make(chan struct{}, 1),
	}
}

// Serve runs the stream until the analysis finishes, the peer goes away or
// ctx is cancelled. It always closes the connection.
func (c *Client) Serve(ctx context.Context) {
	defer func() {
		_ = c.conn.Close() // best-effort cleanup
	}()

	ctx = logging.ContextWithRecordingID(ctx, c.recordingID.String())

	sub, err := c.hub.Subscribe(c.recordingID)
	if err != nil {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer c.hub.Unsubscribe(sub)

	readDone := make(chan struct{})
	go c.readPump(readDone)

	c.writePump(ctx, sub, readDone)
}

// readPump consumes client frames so control frames are processed and a
// closed peer is noticed.
func (c *Client) readPump(done chan<- struct{}) {
	defer close(done)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		if msg.Type == MessageTypePing {
			select {
			case c.pings <- struct{}{}:
			default:
			}
		}
	}
}

// writePump owns every data write on the connection.
func (c *Client) writePump(ctx context.Context, sub *Subscription, readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if !c.push(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return

		case <-sub.Done():
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return

		case <-readDone:
			return

		case <-sub.C():
			if !c.push(ctx) {
				return
			}

		case <-c.pings:
			if err := c.write(Message{Type: MessageTypePong}); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// push sends the current progress if it changed. It reports whether the
// stream should stay open.
func (c *Client) push(ctx context.Context) bool {
	p, err := c.loader.GetProgress(ctx, c.recordingID)
	if errors.Is(err, database.ErrNotFound) {
		c.closeWith(websocket.CloseNormalClosure, "recording deleted")
		return false
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to load progress for stream")
		c.closeWith(websocket.CloseInternalServerErr, "progress unavailable")
		return false
	}

	if c.last == nil || progressChanged(c.last, p) {
		if err := c.write(Message{Type: MessageTypeProgress, Data: p}); err != nil {
			return false
		}
		c.last = p
	}

	if p.Status.Terminal() {
		c.closeWith(websocket.CloseNormalClosure, "analysis "+string(p.Status))
		return false
	}
	return true
}

func (c *Client) write(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) closeWith(code int, text string) {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeWait),
	)
}

func progressChanged(a, b *models.RecordingProgress) bool {
	return a.Status != b.Status ||
		a.Percent != b.Percent ||
		!a.LastUpdate.Equal(b.LastUpdate) ||
		!equalInt(a.Channel, b.Channel) ||
		!equalString(a.Description, b.Description) ||
		!equalString(a.Error, b.Error)
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
