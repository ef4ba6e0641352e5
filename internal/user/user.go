// Package user holds the local user records the access guard resolves
// external identities into. Users are reference data here; identity
// provisioning itself belongs to the external auth collaborator.
package user

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store interface {
	// Upsert creates or updates the record keyed by ExternalID and returns
	// the stored state (with the local id filled in).
	Upsert(ctx context.Context, u *User) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Close() error
}
