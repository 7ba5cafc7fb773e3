package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zoobzio/clockz"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrInvalidClaims  = errors.New("invalid token claims")
	ErrMissingSubject = errors.New("subject missing in token")
	ErrNoVerifier     = errors.New("no session verifier configured")
)

// Session is an authenticated caller of the API
type Session struct {
	Subject   string
	Method    string
	ExpiresAt time.Time
}

// Verifier turns a bearer credential into a session
type Verifier interface {
	Verify(ctx context.Context, token string) (*Session, error)
}

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and validates dashboard session tokens
type JWTService struct {
	secretKey []byte
	expiry    time.Duration
	issuer    string
	clock     clockz.Clock
}

// NewJWTService creates a new JWT service. A zero expiry means 12 hours.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &JWTService{
		secretKey: []byte(secret),
		expiry:    expiry,
		issuer:    "paygate",
		clock:     clockz.RealClock,
	}
}

// WithClock replaces the clock used for issuing and validating tokens
func (s *JWTService) WithClock(clock clockz.Clock) *JWTService {
	s.clock = clock
	return s
}

// GenerateToken generates a new signed token for subject
func (s *JWTService) GenerateToken(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.expiry)

	claims := JWTClaims{
		Scope: "gateways:read payments:write",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.clock.Now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}

// RefreshToken generates a new token from an existing valid token
func (s *JWTService) RefreshToken(tokenString string) (string, time.Time, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.GenerateToken(claims.Subject)
}

// Verify implements Verifier for JWT bearer tokens
func (s *JWTService) Verify(_ context.Context, token string) (*Session, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	session := &Session{Subject: claims.Subject, Method: "jwt"}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// APIKeyVerifier accepts a single static API key
type APIKeyVerifier struct {
	key []byte
}

// NewAPIKeyVerifier returns nil for an empty key so it can be skipped
func NewAPIKeyVerifier(key string) *APIKeyVerifier {
	if key == "" {
		return nil
	}
	return &APIKeyVerifier{key: []byte(key)}
}

// Verify implements Verifier with a constant time comparison
func (v *APIKeyVerifier) Verify(_ context.Context, token string) (*Session, error) {
	if subtle.ConstantTimeCompare([]byte(token), v.key) != 1 {
		return nil, ErrInvalidToken
	}
	return &Session{Subject: "api-key", Method: "api_key"}, nil
}

// ChainVerifier accepts a credential if any of its verifiers does
type ChainVerifier []Verifier

// NewChainVerifier drops nil verifiers
func NewChainVerifier(verifiers ...Verifier) ChainVerifier {
	var chain ChainVerifier
	for _, v := range verifiers {
		switch typed := v.(type) {
		case nil:
			continue
		case *APIKeyVerifier:
			if typed == nil {
				continue
			}
		case *JWTService:
			if typed == nil {
				continue
			}
		}
		chain = append(chain, v)
	}
	return chain
}

// Verify returns the first successful session. Expired tokens are reported
// as such even when a later verifier also rejects them.
func (c ChainVerifier) Verify(ctx context.Context, token string) (*Session, error) {
	if len(c) == 0 {
		return nil, ErrNoVerifier
	}

	err := ErrInvalidToken
	for _, v := range c {
		session, verr := v.Verify(ctx, token)
		if verr == nil {
			return session, nil
		}
		if errors.Is(verr, ErrExpiredToken) {
			err = verr
		}
	}
	return nil, err
}
