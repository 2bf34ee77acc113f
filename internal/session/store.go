// Package session binds an authenticated username and provider token to a
// client through a signed cookie naming a server-side record.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type Binding struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	ExternalToken string    `json:"external_token"`
	CreatedAt     time.Time `json:"created_at"`
}

type Store interface {
	Save(ctx context.Context, b *Binding, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Binding, error)
	Delete(ctx context.Context, id string) error
}
