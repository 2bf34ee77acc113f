package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"segportal/internal/domain/user"
	"segportal/internal/identity"
	"segportal/internal/pkg/apperr"
	"segportal/internal/pkg/logger"
)

type LoginResult struct {
	Token     string
	Username  string
	IsNewUser bool
	User      user.PublicUser
}

// Service orchestrates delegated login: the provider decides, the local
// directory only mirrors the identity and records usage.
type Service struct {
	provider identity.Authenticator
	users    user.Repository
	log      *logger.Logger
	hash     func(password string) (string, error)
}

func NewService(provider identity.Authenticator, users user.Repository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		provider: provider,
		users:    users,
		log:      log.With("service", "AuthService"),
		hash:     hashPassword,
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("Username and password are required")
	}

	auth, err := s.provider.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	u, isNew, err := s.mirrorUser(ctx, username, password)
	if err != nil {
		s.log.Error("user directory unavailable during login", "username", username, "error", err.Error())
		return nil, err
	}

	s.log.Info("login succeeded", "username", username, "new_user", isNew)
	return &LoginResult{
		Token:     auth.Token,
		Username:  username,
		IsNewUser: isNew,
		User:      u.Public(),
	}, nil
}

func (s *Service) mirrorUser(ctx context.Context, username, password string) (*user.User, bool, error) {
	existing, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		u, err := s.users.TouchLastLogin(ctx, existing.Username)
		return u, false, err
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, false, err
	}

	hashed, err := s.hash(password)
	if err != nil {
		return nil, false, err
	}
	created, err := s.users.Create(ctx, username, hashed)
	if errors.Is(err, apperr.ErrConflict) {
		// a concurrent first login won the insert
		u, err := s.users.TouchLastLogin(ctx, username)
		return u, false, err
	}
	if err != nil {
		return nil, false, err
	}
	created.PasswordHash = ""
	return created, true, nil
}

// GetUser returns the mirrored profile for a session user.
func (s *Service) GetUser(ctx context.Context, username string) (*user.PublicUser, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// hashPassword keeps only the first 72 bytes, the most bcrypt ever reads.
func hashPassword(password string) (string, error) {
	raw := []byte(password)
	if len(raw) > 72 {
		raw = raw[:72]
	}
	b, err := bcrypt.GenerateFromPassword(raw, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
