package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 365 * 24 * time.Hour
	defaultIssuer     = "tvshelf"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Claims represents JWT claims used across the service.
type Claims struct {
	AccountID string    `json:"id"`
	Kind      TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// Token is a signed token with its expiry.
type Token struct {
	Value     string
	Kind      TokenKind
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 tokens. Access and refresh tokens are signed
// with distinct secrets so one can never be replayed as the other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl <= 0 {
			return errors.New("auth: access ttl must be positive")
		}
		s.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl <= 0 {
			return errors.New("auth: refresh ttl must be positive")
		}
		s.refreshTTL = ttl
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService builds a TokenService. Both secrets are required and must differ.
func NewTokenService(accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(accessSecret) == "" || strings.TrimSpace(refreshSecret) == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	svc := &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		issuer:        defaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// IssueAccessToken signs a short-lived access token for accountID.
func (s *TokenService) IssueAccessToken(accountID string) (Token, error) {
	return s.issue(accountID, AccessToken)
}

// IssueRefreshToken signs a long-lived refresh token for accountID.
func (s *TokenService) IssueRefreshToken(accountID string) (Token, error) {
	return s.issue(accountID, RefreshToken)
}

// VerifyAccessToken validates an access token and returns its claims.
func (s *TokenService) VerifyAccessToken(raw string) (*Claims, error) {
	return s.Verify(raw, AccessToken)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
func (s *TokenService) VerifyRefreshToken(raw string) (*Claims, error) {
	return s.Verify(raw, RefreshToken)
}

// Verify checks signature, expiry, issuer and kind. Failures are ErrTokenExpired,
// ErrTokenMalformed or ErrTokenInvalid.
func (s *TokenService) Verify(raw string, kind TokenKind) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}
	secret, err := s.secretFor(kind)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, kind)
	}
	if strings.TrimSpace(claims.AccountID) == "" || claims.AccountID != claims.Subject {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	return claims, nil
}

func (s *TokenService) issue(accountID string, kind TokenKind) (Token, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Token{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	secret, err := s.secretFor(kind)
	if err != nil {
		return Token{}, err
	}
	ttl := s.accessTTL
	if kind == RefreshToken {
		ttl = s.refreshTTL
	}

	now := s.now().UTC()
	claims := Claims{
		AccountID: accountID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, Kind: kind, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *TokenService) secretFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case AccessToken:
		return s.accessSecret, nil
	case RefreshToken:
		return s.refreshSecret, nil
	default:
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrTokenInvalid, kind)
	}
}

// classifyTokenError folds jwt errors into the package taxonomy. Signature checks run
// before claim validation, so a token signed with the other secret is invalid, not expired.
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
