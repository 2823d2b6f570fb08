package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/models"
)

const (
	maxMessageBytes = 4096
	maxBodyRunes    = 2000
	persistTimeout  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the token query parameter authenticates the socket
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event names.
const (
	EventMessage = "message"
	EventError   = "error"
)

// MessageSaver persists chat messages.
type MessageSaver interface {
	Save(ctx context.Context, msg *models.ChatMessage) error
}

// Client represents a single WebSocket connection in a chat room.
type Client struct {
	ID            string
	RoomID        string
	ListingID     string
	UserID        string
	CounterpartID string
	hub           *Hub
	messages      MessageSaver
	conn          *websocket.Conn
	send          chan WSMessage
	logger        *zap.Logger
}

func newClient(hub *Hub, messages MessageSaver, conn *websocket.Conn, logger *zap.Logger, roomID, listingID, userID, counterpartID string) *Client {
	return &Client{
		ID:            uuid.New().String(),
		RoomID:        roomID,
		ListingID:     listingID,
		UserID:        userID,
		CounterpartID: counterpartID,
		hub:           hub,
		messages:      messages,
		conn:          conn,
		send:          make(chan WSMessage, 256),
		logger:        logger,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case EventMessage:
			c.handleMessage(msg.Data)
		default:
			// ignore
		}
	}
}

// handleMessage persists an incoming message and publishes it to the room.
// Messages are always stored, whether or not the counterpart is connected.
func (c *Client) handleMessage(data json.RawMessage) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.hub.SendToClient(c.RoomID, c.ID, EventError, map[string]string{"error": "invalid message"})
		return
	}
	body := strings.TrimSpace(payload.Body)
	if body == "" {
		return
	}
	if len([]rune(body)) > maxBodyRunes {
		c.hub.SendToClient(c.RoomID, c.ID, EventError, map[string]string{"error": "message too long"})
		return
	}

	out := &models.ChatMessage{
		RoomID:      c.RoomID,
		ListingID:   c.ListingID,
		SenderID:    c.UserID,
		RecipientID: c.CounterpartID,
		Body:        body,
		SentAt:      time.Now().UTC(),
	}
	if c.messages != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := c.messages.Save(ctx, out)
		cancel()
		if err != nil {
			c.logger.Error("save chat message failed", zap.String("room_id", c.RoomID), zap.Error(err))
			c.hub.SendToClient(c.RoomID, c.ID, EventError, map[string]string{"error": "message could not be saved"})
			return
		}
	}
	c.hub.PublishToRoom(c.RoomID, EventMessage, out)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
