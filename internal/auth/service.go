package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"tvshelf.org/internal/ids"
)

// Service runs the sign-up, sign-in and token flows.
type Service struct {
	accounts AccountStore
	roles    RoleStore
	tokens   *TokenService
	resolver *Resolver
	hash     PasswordHasher
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithPasswordHasher replaces the default bcrypt hasher.
func WithPasswordHasher(fn PasswordHasher) ServiceOption {
	return func(s *Service) error {
		if fn == nil {
			return errors.New("auth: password hasher is nil")
		}
		s.hash = fn
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(accounts AccountStore, roles RoleStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if accounts == nil || roles == nil || tokens == nil {
		return nil, errors.New("auth: account store, role store and token service are required")
	}
	svc := &Service{
		accounts: accounts,
		roles:    roles,
		tokens:   tokens,
		resolver: NewResolver(accounts, roles),
		hash:     HashPassword,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Resolver exposes the identity resolver used by the service.
func (s *Service) Resolver() *Resolver { return s.resolver }

// SignupRequest carries a registration. Roles defaults to NEW_USER.
type SignupRequest struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

// Session is the result of a successful sign-in.
type Session struct {
	Identity     Identity
	AccessToken  Token
	RefreshToken Token
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (Identity, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)
	if username == "" {
		return Identity{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return Identity{}, err
	}
	if req.Password == "" {
		return Identity{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	roles, err := parseRoleNames(req.Roles)
	if err != nil {
		return Identity{}, err
	}
	if len(roles) == 0 {
		roles = []Role{RoleNewUser}
	}
	roleIDs, err := s.roleIDs(ctx, roles)
	if err != nil {
		return Identity{}, err
	}

	for _, key := range []string{username, email} {
		if _, err := s.accounts.FindByCredentialKey(ctx, key); err == nil {
			return Identity{}, fmt.Errorf("%w: %s is already in use", ErrDuplicateAccount, key)
		} else if !errors.Is(err, ErrAccountNotFound) {
			return Identity{}, err
		}
	}

	hash, err := s.hash(req.Password)
	if err != nil {
		return Identity{}, err
	}
	now := s.now().UTC()
	acc, err := s.accounts.Create(ctx, Account{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RoleIDs:      roleIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Identity{}, err
	}
	return Identity{Account: acc, Roles: roles}, nil
}

// Signin checks credentials and issues an access/refresh token pair. An unknown login
// yields ErrAccountNotFound; a wrong password yields ErrInvalidCredentials.
func (s *Service) Signin(ctx context.Context, login, password string) (Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Session{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	acc, err := s.accounts.FindByCredentialKey(ctx, login)
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	identity, err := s.resolver.Resolve(ctx, acc.ID)
	if err != nil {
		return Session{}, err
	}
	access, err := s.tokens.IssueAccessToken(acc.ID)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(acc.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Identity: identity, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The account must
// still resolve; a deleted account's refresh token stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Token, Identity, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return Token{}, Identity{}, err
	}
	identity, err := s.resolveSubject(ctx, claims.AccountID)
	if err != nil {
		return Token{}, Identity{}, err
	}
	access, err := s.tokens.IssueAccessToken(identity.ID())
	if err != nil {
		return Token{}, Identity{}, err
	}
	return access, identity, nil
}

// Authenticate verifies an access token and resolves its subject.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return Identity{}, err
	}
	return s.resolveSubject(ctx, claims.AccountID)
}

// resolveSubject maps a vanished subject to ErrTokenInvalid so the boundary answers 401.
func (s *Service) resolveSubject(ctx context.Context, accountID string) (Identity, error) {
	identity, err := s.resolver.Resolve(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		return Identity{}, err
	}
	return identity, nil
}

func (s *Service) roleIDs(ctx context.Context, roles []Role) ([]string, error) {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		rec, err := s.roles.FindByName(ctx, role.StorageName())
		if err != nil {
			return nil, err
		}
		out = append(out, rec.ID)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	return nil
}
