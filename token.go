package kunci

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies bearer tokens for outgoing requests.
type TokenSource interface {
	// Token returns the current access token, or "" when none is held.
	Token() string
	// ClientToken returns a client credential token used when no access token is held.
	ClientToken(ctx context.Context) (string, error)
}

// TokenStore persists refreshed tokens under each configured key.
type TokenStore interface {
	Set(key, value string)
}

// RefreshedToken is the result of a successful token refresh.
type RefreshedToken struct {
	Token     string
	ExpiresIn time.Duration
}

// TokenRefreshFunc obtains a new access token after a 401. Returning nil or an
// empty token means the refresh failed.
type TokenRefreshFunc func(ctx context.Context) (*RefreshedToken, error)

// AuthErrorHandler is invoked synchronously when a request ends in 401 or 403.
type AuthErrorHandler func(err *ClientError)

// DefaultTokenKey is the store key used when no token keys are configured.
const DefaultTokenKey = "access_token"

// MemoryTokenStore is an in-memory TokenSource and TokenStore. Token returns
// the value stored under the first configured key.
type MemoryTokenStore struct {
	mu          sync.RWMutex
	values      map[string]string
	primary     string
	clientToken string
}

// NewMemoryTokenStore creates a store whose Token reads primaryKey.
func NewMemoryTokenStore(primaryKey string) *MemoryTokenStore {
	if primaryKey == "" {
		primaryKey = DefaultTokenKey
	}
	return &MemoryTokenStore{values: make(map[string]string), primary: primaryKey}
}

// StaticToken returns a store pre-loaded with token.
func StaticToken(token string) *MemoryTokenStore {
	s := NewMemoryTokenStore(DefaultTokenKey)
	s.Set(DefaultTokenKey, token)
	return s
}

func (s *MemoryTokenStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value stored under key.
func (s *MemoryTokenStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *MemoryTokenStore) Token() string {
	return s.Get(s.primary)
}

// SetClientToken sets the value returned by ClientToken.
func (s *MemoryTokenStore) SetClientToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientToken = token
}

func (s *MemoryTokenStore) ClientToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientToken, nil
}

// TokenClaims is the subset of JWT claims the client reads.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token expired before now. Tokens without exp never expire.
func (c TokenClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

var errMalformedToken = errors.New("malformed token")

// DecodeToken reads the subject and expiry of a JWT without verifying its
// signature. Verification belongs to the server.
func DecodeToken(token string) (TokenClaims, error) {
	if token == "" {
		return TokenClaims{}, errMalformedToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", errMalformedToken, err)
	}

	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// currentToken resolves the bearer token for an attempt: a refreshed token
// for this call wins, then the source token, then the client token.
func (c *Client) currentToken(ctx context.Context, state *retryState) string {
	if state != nil && state.refreshedToken != "" {
		return state.refreshedToken
	}
	if c.tokens == nil {
		return ""
	}
	if token := c.tokens.Token(); token != "" {
		return token
	}
	token, err := c.tokens.ClientToken(ctx)
	if err != nil {
		c.warn("Client token lookup failed", "error", err)
		return ""
	}
	return token
}

// refreshToken runs the refresh callback and persists a usable result to
// every configured token key.
func (c *Client) refreshToken(ctx context.Context, requestID string) (string, bool) {
	if c.onTokenRefresh == nil {
		return "", false
	}

	refreshed, err := c.onTokenRefresh(ctx)
	if err != nil || refreshed == nil || refreshed.Token == "" {
		c.metrics.RecordTokenRefresh(false)
		if c.debugEnabled(c.debug.LogRetries) {
			c.logger.Debug("Token refresh failed", "requestID", requestID, "error", err)
		}
		return "", false
	}

	if c.tokenStore != nil {
		for _, key := range c.tokenKeys {
			c.tokenStore.Set(key, refreshed.Token)
		}
	}
	c.metrics.RecordTokenRefresh(true)
	if c.debugEnabled(c.debug.LogRetries) {
		c.logger.Debug("Token refreshed", "requestID", requestID, "expiresIn", refreshed.ExpiresIn)
	}
	return refreshed.Token, true
}

func (c *Client) userID(token string) string {
	if token == "" {
		return ""
	}
	claims, err := DecodeToken(token)
	if err != nil {
		return ""
	}
	return claims.Subject
}
