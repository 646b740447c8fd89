package passkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/brewit-money/wallet/internal/storage"
)

const (
	challengePrefix     = "passkey:challenge:"
	DefaultChallengeTTL = 5 * time.Minute
)

// Challenge is a pending ceremony. UserName is set for registrations, where
// the user does not exist yet.
type Challenge struct {
	Session  webauthn.SessionData `json:"session"`
	UserName string               `json:"userName,omitempty"`
}

// ChallengeStore keeps one pending ceremony per user; a new ceremony replaces
// the previous one.
type ChallengeStore struct {
	store storage.Storage
	ttl   time.Duration
}

func NewChallengeStore(store storage.Storage, ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeStore{
		store: store,
		ttl:   ttl,
	}
}

func (c *ChallengeStore) Put(ctx context.Context, userID string, ch Challenge) error {
	if err := storage.SetJSON(ctx, c.store, challengePrefix+userID, ch, c.ttl); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (c *ChallengeStore) Get(ctx context.Context, userID string) (*Challenge, error) {
	var ch Challenge
	err := storage.GetJSON(ctx, c.store, challengePrefix+userID, &ch)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Delete is called once a ceremony succeeded; failed attempts keep the
// challenge until it expires.
func (c *ChallengeStore) Delete(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, challengePrefix+userID)
}

func (c *ChallengeStore) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx, challengePrefix)
}
