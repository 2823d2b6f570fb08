package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/greenway-eco/backend/internal/kvstore"
	"github.com/greenway-eco/backend/internal/models"
)

// Repository stores chat messages under chats/<room_id>/messages.
type Repository struct {
	store kvstore.Store
}

// NewRepository creates a chat message repository.
func NewRepository(store kvstore.Store) *Repository {
	return &Repository{store: store}
}

func messagesPath(roomID string) string {
	return kvstore.Join("chats", roomID, "messages")
}

// Save pushes msg to its room and sets msg.ID to the generated key.
func (r *Repository) Save(ctx context.Context, msg *models.ChatMessage) error {
	id, err := r.store.Push(ctx, messagesPath(msg.RoomID), msg)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	msg.ID = id
	return nil
}

// History returns the messages of a room, oldest first.
func (r *Repository) History(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	nodes, err := r.store.Children(ctx, messagesPath(roomID))
	if err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}
	list := make([]models.ChatMessage, 0, len(nodes))
	for _, n := range nodes {
		var m models.ChatMessage
		if err := json.Unmarshal(n.Value, &m); err != nil {
			continue
		}
		m.ID = n.Key
		list = append(list, m)
	}
	return list, nil
}
