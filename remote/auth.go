package remote

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// CredentialSource is the auth collaborator. EnsureValid is called
// before every remote operation; on expiry it attempts one refresh and,
// if that fails, surfaces ErrAuthExpired so the caller can prompt
// re-auth instead of treating it as a generic failure.
type CredentialSource interface {
	EnsureValid(ctx context.Context) error
}

// TokenIssuer identifies tokens minted by this application.
const TokenIssuer = "binder"

// TokenSource holds a signed bearer token with an expiry and refreshes
// it in place. How the signing secret is obtained (interactive consent,
// device flow, etc.) is outside this engine; the source just needs a
// secret it can mint with.
type TokenSource struct {
	mu     sync.Mutex
	secret []byte
	ttl    time.Duration
	token  string

	// DisableRefresh simulates a revoked grant: the next refresh
	// attempt fails and EnsureValid returns ErrAuthExpired.
	DisableRefresh bool

	refreshes int
}

// NewTokenSource mints an initial token valid for ttl.
func NewTokenSource(secret string, ttl time.Duration) (*TokenSource, error) {
	if len(secret) < 32 {
		return nil, serr.New("credential secret must be at least 32 characters")
	}
	ts := &TokenSource{secret: []byte(secret), ttl: ttl}
	if err := ts.refresh(); err != nil {
		return nil, err
	}
	return ts, nil
}

// EnsureValid checks the cached token and refreshes it when expired.
func (ts *TokenSource) EnsureValid(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return serr.Wrap(err, "credential check cancelled")
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.validateLocked() == nil {
		return nil
	}

	if ts.DisableRefresh {
		return serr.Wrap(ErrAuthExpired, "credential expired and refresh unavailable")
	}
	if err := ts.refreshLocked(); err != nil {
		return serr.Wrap(ErrAuthExpired, "credential refresh failed")
	}
	logger.Info("Remote credential refreshed", "refreshes", ts.refreshes)
	return nil
}

// Refreshes returns how many times the token has been re-minted,
// counting the initial mint.
func (ts *TokenSource) Refreshes() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshes
}

// Expire invalidates the cached token. Used by tests to force the
// expiry path without waiting out the TTL.
func (ts *TokenSource) Expire() {
	ts.mu.Lock()
	ts.token = ""
	ts.mu.Unlock()
}

func (ts *TokenSource) refresh() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.refreshLocked()
}

func (ts *TokenSource) refreshLocked() error {
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ts.ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return serr.Wrap(err, "failed to sign credential token")
	}
	ts.token = signed
	ts.refreshes++
	return nil
}

func (ts *TokenSource) validateLocked() error {
	if ts.token == "" {
		return serr.New("no credential token")
	}
	token, err := jwt.Parse(ts.token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, serr.New("unexpected signing method")
		}
		return ts.secret, nil
	})
	if err != nil {
		return serr.Wrap(err, "credential token invalid")
	}
	if !token.Valid {
		return serr.New("credential token invalid")
	}
	return nil
}
