package models

import "time"

// ChatMessage is one message in a listing chat room.
type ChatMessage struct {
	ID          string    `json:"id,omitempty"`
	RoomID      string    `json:"room_id"`
	ListingID   string    `json:"listing_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
}
