package magiclink_test

import (
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkozyrev/tg-auth-bridge/magiclink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSigningKey = "0123456789abcdef0123456789abcdef"
	testBaseURL    = "https://auth.example.com"
	testUserID     = "user-1"
	testEmail      = "abc123XYZ@local.local"
	testRedirectTo = "http://localhost:5173/profile"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) nowTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupManager(t *testing.T) (*magiclink.Manager, *clock) {
	t.Helper()

	c := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m, err := magiclink.NewManager(
		[]byte(testSigningKey),
		testBaseURL,
		magiclink.NewInMemoryUsedLinks(),
		magiclink.WithNowTime(c.nowTime),
	)
	require.NoError(t, err)
	return m, c
}

// tokenFromLink pulls the raw token out of an issued link URL
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m, _ := setupManager(t)

	link, err := m.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, testBaseURL+magiclink.VerifyPath+"?token="))

	claims, err := m.Verify(tokenFromLink(t, link))
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.UserID)
	assert.Equal(t, testEmail, claims.Email)
	assert.Equal(t, testRedirectTo, claims.RedirectTo)
}

func TestVerifyIsSingleUse(t *testing.T) {
	m, _ := setupManager(t)

	link, err := m.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)
	token := tokenFromLink(t, link)

	_, err = m.Verify(token)
	require.NoError(t, err)

	_, err = m.Verify(token)
	require.ErrorIs(t, err, magiclink.LinkAlreadyUsedErr)
}

func TestVerifyRejectsExpiredLink(t *testing.T) {
	m, c := setupManager(t)

	link, err := m.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)

	c.advance(magiclink.DefaultTTL + time.Minute)

	_, err = m.Verify(tokenFromLink(t, link))
	require.ErrorIs(t, err, magiclink.InvalidLinkErr)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	m, _ := setupManager(t)

	link, err := m.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)
	token := tokenFromLink(t, link)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = m.Verify(tampered)
	require.ErrorIs(t, err, magiclink.InvalidLinkErr)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	m, _ := setupManager(t)

	other, err := magiclink.NewManager([]byte("another-signing-key-entirely!!!!"), testBaseURL, magiclink.NewInMemoryUsedLinks())
	require.NoError(t, err)

	link, err := other.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)

	_, err = m.Verify(tokenFromLink(t, link))
	require.ErrorIs(t, err, magiclink.InvalidLinkErr)
}

func TestIssuedLinksAreDistinct(t *testing.T) {
	m, _ := setupManager(t)

	first, err := m.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)
	second, err := m.Issue(testUserID, testEmail, testRedirectTo)
	require.NoError(t, err)

	// Same user, same instant, still distinct credentials.
	assert.NotEqual(t, first, second)
}

func TestSessionToken(t *testing.T) {
	m, _ := setupManager(t)

	token, err := m.SessionToken(testUserID, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestUsedLinkStorePurge(t *testing.T) {
	store := magiclink.NewInMemoryUsedLinks()
	now := time.Now()

	require.NoError(t, store.MarkUsed("jti-1", now.Add(time.Minute)))
	require.NoError(t, store.MarkUsed("jti-2", now.Add(-time.Minute)))

	assert.Equal(t, 1, store.Purge(now))
	require.ErrorIs(t, store.MarkUsed("jti-1", now.Add(time.Minute)), magiclink.LinkAlreadyUsedErr)
}
