// Package passkey runs WebAuthn registration and login ceremonies for wallet
// users.
package passkey

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultRPName = "Brewit Wallet"

var ErrVerification = errors.New("verification failed")

type Config struct {
	RPID          string        `mapstructure:"rp_id" json:"rp_id,omitempty"`
	RPDisplayName string        `mapstructure:"rp_name" json:"rp_name,omitempty"`
	RPOrigins     []string      `mapstructure:"rp_origins" json:"rp_origins,omitempty"`
	ChallengeTTL  time.Duration `mapstructure:"challenge_ttl" json:"challenge_ttl,omitempty"`
}

type Service struct {
	webauthn   *webauthn.WebAuthn
	users      UserStore
	challenges *ChallengeStore
	logger     *logrus.Logger
}

func NewService(cfg Config, users UserStore, challenges *ChallengeStore, logger *logrus.Logger) (*Service, error) {
	name := cfg.RPDisplayName
	if name == "" {
		name = DefaultRPName
	}
	w, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: name,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn.New: %w", err)
	}
	return &Service{
		webauthn:   w,
		users:      users,
		challenges: challenges,
		logger:     logger.WithField("pkg", "passkey.Service").Logger,
	}, nil
}

func (s *Service) Users() UserStore {
	return s.users
}

func (s *Service) Challenges() *ChallengeStore {
	return s.challenges
}

// BeginRegistration creates registration options for a new user. The user is
// stored only once the ceremony is verified.
func (s *Service) BeginRegistration(ctx context.Context, userName string) (*protocol.CredentialCreation, string, error) {
	user := &User{
		ID:          uuid.NewString(),
		Name:        userName,
		DisplayName: userName,
	}

	creation, session, err := s.webauthn.BeginRegistration(user,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			ResidentKey:             protocol.ResidentKeyRequirementPreferred,
			UserVerification:        protocol.VerificationPreferred,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithCredentialParameters([]protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
		}),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin registration: %w", err)
	}

	err = s.challenges.Put(ctx, user.ID, Challenge{Session: *session, UserName: userName})
	if err != nil {
		return nil, "", err
	}
	return creation, user.ID, nil
}

func (s *Service) FinishRegistration(ctx context.Context, userID string, body io.Reader) (*User, *webauthn.Credential, error) {
	ch, err := s.challenges.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	user := &User{
		ID:          userID,
		Name:        ch.UserName,
		DisplayName: ch.UserName,
		CreatedAt:   time.Now(),
	}
	cred, err := s.webauthn.CreateCredential(user, ch.Session, parsed)
	if err != nil {
		s.logger.WithField("user_id", userID).Warnf("registration verification failed: %v", err)
		return nil, nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	user.PutCredential(*cred)
	if err := s.users.Save(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to save user: %w", err)
	}
	if err := s.challenges.Delete(ctx, userID); err != nil {
		s.logger.WithField("user_id", userID).Errorf("failed to delete challenge: %v", err)
	}
	return user, cred, nil
}

func (s *Service) BeginLogin(ctx context.Context, userID string) (*protocol.CredentialAssertion, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	assertion, session, err := s.webauthn.BeginLogin(user,
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin login: %w", err)
	}

	if err := s.challenges.Put(ctx, userID, Challenge{Session: *session}); err != nil {
		return nil, err
	}
	return assertion, nil
}

// FinishLogin verifies the assertion and stores the new sign counter.
func (s *Service) FinishLogin(ctx context.Context, userID string, body io.Reader) (*User, *webauthn.Credential, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, err := s.challenges.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	cred, err := s.webauthn.ValidateLogin(user, ch.Session, parsed)
	if err != nil {
		s.logger.WithField("user_id", userID).Warnf("login verification failed: %v", err)
		return nil, nil, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if cred.Authenticator.CloneWarning {
		s.logger.WithField("user_id", userID).Warn("sign counter did not increase, authenticator may be cloned")
	}

	user.PutCredential(*cred)
	if err := s.users.Save(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to save user: %w", err)
	}
	if err := s.challenges.Delete(ctx, userID); err != nil {
		s.logger.WithField("user_id", userID).Errorf("failed to delete challenge: %v", err)
	}
	return user, cred, nil
}
