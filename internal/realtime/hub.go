// Package realtime keeps one room per authenticated user plus a broadcast
// channel for ticket-wide events, and serves them over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Wire events.
const (
	EventJoinRoom        = "join_room"
	EventRoomJoinedAck   = "room_joined_ack"
	EventNotificationNew = "notification_new"
	EventFeedbackAdded   = "feedback_added"
	EventFeedbackUpdated = "feedback_updated"
	EventFeedbackDeleted = "feedback_deleted"
	EventAnalyticsUpdate = "analytics_update"
	EventError           = "error"
)

var (
	// ErrNoSubscribers means nobody has joined the addressed room. The push is lost.
	ErrNoSubscribers = errors.New("realtime: no subscribers in room")
	// ErrForeignRoom is returned when a client asks to join a room that is not its own.
	ErrForeignRoom = errors.New("realtime: cannot join another user's room")
)

// Emitter delivers events to a user's room or to every connected client.
type Emitter interface {
	EmitToUser(ctx context.Context, userID, event string, payload any) error
	Broadcast(ctx context.Context, event string, payload any) error
}

// Frame is the envelope written to clients.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inboundFrame is the envelope read from clients.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is one websocket connection. UserID is fixed at handshake.
type Client struct {
	ID     string
	UserID string
	send   chan []byte
	closed bool
}

// Send exposes the outbound queue for the write pump and for tests.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub tracks connected clients and room membership. Membership is ephemeral:
// a reconnecting client starts outside its room until it joins again.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	bufferSize int
	logger     *zap.Logger
}

// NewHub creates an empty hub. bufferSize bounds each client's outbound queue.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Register adds a connection for an authenticated user.
func (h *Hub) Register(userID string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, h.bufferSize),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("realtime client connected", zap.String("client_id", c.ID), zap.String("user_id", userID))
	return c
}

// Unregister removes the client from every room and closes its queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c)
	if members, ok := h.rooms[c.UserID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.UserID)
		}
	}
	close(c.send)

	h.logger.Debug("realtime client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID))
}

// Join places the client in room. Only the client's own room is allowed and
// joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) error {
	if room != c.UserID {
		return ErrForeignRoom
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return nil
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}

	h.logger.Debug("realtime room joined", zap.String("client_id", c.ID), zap.String("room", room))
	return nil
}

// EmitToUser pushes to every connection that joined userID's room.
func (h *Hub) EmitToUser(_ context.Context, userID, event string, payload any) error {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[userID]
	if len(members) == 0 {
		return ErrNoSubscribers
	}
	for c := range members {
		h.enqueue(c, event, msg)
	}
	return nil
}

// Broadcast pushes to every connected client, joined or not.
func (h *Hub) Broadcast(_ context.Context, event string, payload any) error {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, event, msg)
	}
	return nil
}

// reply writes directly to one client.
func (h *Hub) reply(c *Client, event string, payload any) {
	msg, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Warn("realtime encode reply", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return
	}
	h.enqueue(c, event, msg)
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *Client, event string, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("realtime send buffer full; dropping event",
			zap.String("client_id", c.ID),
			zap.String("user_id", c.UserID),
			zap.String("event", event))
	}
}

// roomSize returns the number of connections joined to userID's room.
func (h *Hub) roomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: payload})
}

// HandleMessage processes one client frame. join_room accepts either a bare
// user id string or {"userId": "..."} as data.
func (h *Hub) HandleMessage(c *Client, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		h.reply(c, EventError, map[string]string{"message": "malformed frame"})
		return
	}

	switch in.Event {
	case EventJoinRoom:
		room := decodeRoom(in.Data)
		if err := h.Join(c, room); err != nil {
			h.reply(c, EventError, map[string]string{"message": err.Error()})
			return
		}
		h.reply(c, EventRoomJoinedAck, map[string]string{"room": room})
	default:
		h.logger.Debug("realtime unknown event", zap.String("event", in.Event), zap.String("client_id", c.ID))
	}
}

func decodeRoom(data json.RawMessage) string {
	var room string
	if err := json.Unmarshal(data, &room); err == nil {
		return room
	}
	var obj struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.UserID
	}
	return ""
}
