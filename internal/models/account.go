package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is an identity provider account. RoleClaim is empty until a role
// has been granted.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	RoleClaim    Role      `json:"role_claim,omitempty"`
	ClaimVersion int       `json:"claim_version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
