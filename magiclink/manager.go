// Package magiclink issues and verifies the single-use login credentials that
// finalize a bridge handshake. A link is a signed token addressed at a fixed
// verification endpoint; verification consumes the token, so following a link
// twice fails.
package magiclink

import (
	"fmt"
	"net/url"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// DefaultTTL bounds how long an unconsumed link stays valid.
	DefaultTTL = 5 * time.Minute

	// VerifyPath is the endpoint a link points at.
	VerifyPath = "/auth/verify"
)

var (
	InvalidLinkErr     = errors.New("invalid or expired magic link")
	LinkAlreadyUsedErr = errors.New("magic link already used")
)

// Claims is the verified content of a consumed magic link.
type Claims struct {
	UserID     string
	Email      string
	RedirectTo string
}

// Manager mints and consumes magic links. Single use is enforced through the
// used-link store, keyed by the token's unique ID.
type Manager struct {
	signingKey []byte
	baseURL    string
	ttl        time.Duration
	used       UsedLinkStore
	nowTime    func() time.Time // nowTime function (injectable for testing)
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithTTL overrides the default link lifetime
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// NewManager creates a magic link manager. baseURL is the externally visible
// base of this service, where the verification endpoint is mounted.
func NewManager(signingKey []byte, baseURL string, used UsedLinkStore, options ...ManagerOption) (*Manager, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("[NewManager] signing key is required")
	}
	if baseURL == "" {
		return nil, errors.New("[NewManager] base URL is required")
	}
	if used == nil {
		return nil, errors.New("[NewManager] used link store is required")
	}

	m := &Manager{
		signingKey: signingKey,
		baseURL:    baseURL,
		ttl:        DefaultTTL,
		used:       used,
		nowTime:    time.Now,
	}

	for _, opt := range options {
		opt(m)
	}

	return m, nil
}

// Issue mints a single-use login link for the user, addressed at redirectTo
// once consumed.
func (m *Manager) Issue(userID, email, redirectTo string) (string, error) {
	now := m.nowTime()
	claims := jwtlib.MapClaims{
		"sub":         userID,
		"email":       email,
		"redirect_to": redirectTo,
		"iat":         now.Unix(),
		"exp":         now.Add(m.ttl).Unix(),
		"jti":         uuid.New().String(),
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.Issue] SignedString")
	}

	return fmt.Sprintf("%s%s?token=%s", m.baseURL, VerifyPath, url.QueryEscape(signed)), nil
}

// Verify consumes a magic link token. The first call for a given token
// returns its claims; every later call fails with LinkAlreadyUsedErr, and
// expired or tampered tokens fail with InvalidLinkErr.
func (m *Manager) Verify(rawToken string) (*Claims, error) {
	parsed, err := jwtlib.Parse(rawToken, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.signingKey, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(m.nowTime))
	if err != nil || !parsed.Valid {
		return nil, InvalidLinkErr
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, InvalidLinkErr
	}

	jti, _ := mapClaims["jti"].(string)
	if jti == "" {
		return nil, InvalidLinkErr
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, InvalidLinkErr
	}

	// Burn the token before handing the claims out.
	if err := m.used.MarkUsed(jti, exp.Time); err != nil {
		return nil, err
	}

	userID, _ := mapClaims["sub"].(string)
	email, _ := mapClaims["email"].(string)
	redirectTo, _ := mapClaims["redirect_to"].(string)

	return &Claims{
		UserID:     userID,
		Email:      email,
		RedirectTo: redirectTo,
	}, nil
}

// SessionToken mints a signed bearer token for a user whose magic link was
// just consumed, suitable for a session cookie.
func (m *Manager) SessionToken(userID string, ttl time.Duration) (string, error) {
	now := m.nowTime()
	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.New().String(),
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.SessionToken] SignedString")
	}
	return signed, nil
}
