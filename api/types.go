package api

import (
	"context"

	log "github.com/sirupsen/logrus"

	"weekplan/domain"
	"weekplan/storage"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// ImageStore persists uploaded banner images and returns their public address.
type ImageStore interface {
	Upload(ctx context.Context, userID, weekID, imageBase64, mimeType string) (string, error)
}

// Publisher receives change events after successful writes.
type Publisher interface {
	Publish(domain.ChangeEvent) bool
}

// Idempotency lets a retried create replay the first response.
type Idempotency interface {
	// Begin claims the key. When the key was already claimed it returns the
	// stored response, or nil while the first request is still running.
	Begin(ctx context.Context, userID, key string) (replay *StoredResponse, fresh bool, err error)
	Complete(ctx context.Context, userID, key string, resp StoredResponse) error
	// Abort releases a claimed key so the caller may retry.
	Abort(ctx context.Context, userID, key string) error
}

// Deps are the collaborators of the HTTP handlers. Images, Events and
// Idempotency are optional.
type Deps struct {
	Store         storage.Backend
	Auth          Authenticator
	Idempotency   Idempotency
	Images        ImageStore
	Events        Publisher
	Logger        *log.Logger
	MaxImageBytes int
}
