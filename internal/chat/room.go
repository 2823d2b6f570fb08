package chat

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is returned by RoomID when an identifier is empty.
var ErrInvalidArgument = errors.New("room id requires two participants and a listing")

// RoomID returns the room key for a conversation between a and b about a
// listing. The key does not depend on argument order. a and b may be equal.
func RoomID(a, b, listingID string) (string, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" || strings.TrimSpace(listingID) == "" {
		return "", ErrInvalidArgument
	}
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%s_%s_%s", listingID, a, b), nil
}
