package auth

import (
	"context"

	"satlink/server/internal/store"
)

// OwnerAuthorizer grants access to a session only to the user the session
// belongs to. Absence of the session surfaces as the store's not-found error
// so callers can distinguish missing from forbidden.
type OwnerAuthorizer struct {
	store store.Store
}

func NewOwnerAuthorizer(st store.Store) *OwnerAuthorizer {
	return &OwnerAuthorizer{store: st}
}

func (a *OwnerAuthorizer) Authorize(ctx context.Context, userID, sessionID string) (bool, error) {
	rec, err := a.store.LoadCheckpoint(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return rec.UserID == userID, nil
}
