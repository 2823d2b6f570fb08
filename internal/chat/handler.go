package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/middleware"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/internal/session"
	"github.com/greenway-eco/backend/pkg/response"
)

// NameLookup resolves a display name for a user id.
type NameLookup interface {
	LookupDisplayName(ctx context.Context, userID string) string
}

// History returns the stored messages of a room.
type History interface {
	MessageSaver
	History(ctx context.Context, roomID string) ([]models.ChatMessage, error)
}

// RoomInfo describes the room between the caller and a listing owner.
type RoomInfo struct {
	RoomID    string `json:"room_id"`
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name"`
	ListingID string `json:"exp_id"`
}

// Handler serves chat room lookup, history and the chat websocket.
type Handler struct {
	hub      *Hub
	messages History
	names    NameLookup
	resolver *session.Resolver
	logger   *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(hub *Hub, messages History, names NameLookup, resolver *session.Resolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, messages: messages, names: names, resolver: resolver, logger: logger}
}

func roomQuery(c *gin.Context, callerID string) (roomID, ownerID, listingID string, err error) {
	ownerID = strings.TrimSpace(c.Query("owner_id"))
	listingID = strings.TrimSpace(c.Query("exp_id"))
	// Room ids become node store path segments.
	if strings.Contains(ownerID, "/") || strings.Contains(listingID, "/") || strings.Contains(callerID, "/") {
		return "", ownerID, listingID, ErrInvalidArgument
	}
	roomID, err = RoomID(callerID, ownerID, listingID)
	return roomID, ownerID, listingID, err
}

// Room handles GET /chats?owner_id=&exp_id=.
func (h *Handler) Room(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	roomID, ownerID, listingID, err := roomQuery(c, caller.UserID)
	if err != nil {
		response.BadRequest(c, "owner_id and exp_id are required")
		return
	}
	name := ownerID
	if h.names != nil {
		name = h.names.LookupDisplayName(c.Request.Context(), ownerID)
	}
	response.OK(c, RoomInfo{RoomID: roomID, OwnerID: ownerID, OwnerName: name, ListingID: listingID})
}

// Messages handles GET /chats/messages?owner_id=&exp_id=.
func (h *Handler) Messages(c *gin.Context) {
	caller, _ := middleware.CurrentIdentity(c)
	roomID, _, _, err := roomQuery(c, caller.UserID)
	if err != nil {
		response.BadRequest(c, "owner_id and exp_id are required")
		return
	}
	list, err := h.messages.History(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("load chat history failed", zap.String("room_id", roomID), zap.Error(err))
		response.ServiceUnavailable(c, "chat history is unavailable")
		return
	}
	response.OK(c, list)
}

// ServeWs handles GET /ws/chat?owner_id=&exp_id=&token=. Browsers cannot set
// headers on websocket requests, so the session token comes in the query.
func (h *Handler) ServeWs(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = c.Cookie(session.CookieName)
	}
	id, err := h.resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		} else {
			h.logger.Error("websocket session resolve failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session could not be verified"})
		}
		return
	}
	roomID, ownerID, listingID, err := roomQuery(c, id.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id and exp_id required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(h.hub, h.messages, conn, h.logger, roomID, listingID, id.UserID, ownerID)
	h.hub.Register(client)
	go client.writePump()
	client.readPump()
}
