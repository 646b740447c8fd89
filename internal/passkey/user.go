package passkey

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrChallengeNotFound = errors.New("challenge not found")
)

// User owns the passkey credentials registered under it.
type User struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	DisplayName string                `json:"displayName"`
	Credentials []webauthn.Credential `json:"-"`
	CreatedAt   time.Time             `json:"createdAt"`
}

func (u *User) WebAuthnID() []byte {
	return []byte(u.ID)
}

func (u *User) WebAuthnName() string {
	return u.Name
}

func (u *User) WebAuthnDisplayName() string {
	return u.DisplayName
}

func (u *User) WebAuthnCredentials() []webauthn.Credential {
	return u.Credentials
}

// PutCredential adds cred or replaces the stored one with the same ID.
func (u *User) PutCredential(cred webauthn.Credential) {
	for i := range u.Credentials {
		if bytes.Equal(u.Credentials[i].ID, cred.ID) {
			u.Credentials[i] = cred
			return
		}
	}
	u.Credentials = append(u.Credentials, cred)
}

type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
	Save(ctx context.Context, user *User) error
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int, error)
}

// MemoryUserStore loses every user on restart.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]*User),
	}
}

func clone(u *User) *User {
	c := *u
	c.Credentials = append([]webauthn.Credential(nil), u.Credentials...)
	return &c
}

func (s *MemoryUserStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return clone(u), nil
}

func (s *MemoryUserStore) Save(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = clone(user)
	return nil
}

func (s *MemoryUserStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryUserStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}
