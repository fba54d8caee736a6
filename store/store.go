package store

import (
	"context"
	"time"
)

// User is the subset of the user record the realtime core needs: enough to
// validate a token's subject and to decorate call invitations.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"last_seen"`
}

// UserStore is the persistence collaborator for the presence hub. The hub
// treats it as best-effort: the in-memory registry stays authoritative for
// reachability even when these calls fail.
type UserStore interface {
	// GetUser retrieves a user by ID. Returns (nil, nil) when no such user
	// exists; an error only for store failures.
	GetUser(ctx context.Context, userID string) (*User, error)
	// SetOnline marks the user online and stamps last-seen with now.
	SetOnline(ctx context.Context, userID string) error
	// SetOffline marks the user offline and records the given last-seen time.
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
}
