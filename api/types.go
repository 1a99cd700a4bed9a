package api

import (
	"context"

	"taskflow/ai"
	"taskflow/store"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Workspaces opens the per-user stores.
type Workspaces interface {
	Open(ctx context.Context, userID string) *store.Workspace
}

// Models resolves the AI model for a user's key; an empty key means the
// server default. Forget releases whatever is cached for a key the user no
// longer has.
type Models interface {
	Model(ctx context.Context, apiKey string) (ai.Model, error)
	Forget(apiKey string)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}
