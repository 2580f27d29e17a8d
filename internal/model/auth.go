package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessToken is what the token command prints for a development actor.
type AccessToken struct {
	ActorID   uuid.UUID `json:"actor_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
