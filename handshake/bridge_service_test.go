package handshake_test

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dkozyrev/tg-auth-bridge/handshake"
	"github.com/dkozyrev/tg-auth-bridge/users"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBotUsername   = "bridge_test_bot"
	testWebhookSecret = "test-webhook-secret-1"
	testOrigin        = "http://localhost:5173"
	testRedirectPath  = "/profile"
)

var stateTokenPattern = regexp.MustCompile(`^[0-9a-f]{48}$`)

// stubLinkIssuer lets tests control credential issuance outcomes
type stubLinkIssuer struct {
	mu     sync.Mutex
	err    error
	issued int
}

func (s *stubLinkIssuer) Issue(userID, email, redirectTo string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.issued++
	return fmt.Sprintf("https://auth.example.com/auth/verify?token=link-%s&redirect=%s", userID, redirectTo), nil
}

func (s *stubLinkIssuer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// testFixture holds all test dependencies
type testFixture struct {
	handshakeRepo *handshake.InMemoryRepo
	userRepo      *users.InMemoryRepo
	links         *stubLinkIssuer
	service       *handshake.BridgeService

	mu  sync.Mutex
	now time.Time
}

func (f *testFixture) nowTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *testFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		handshakeRepo: handshake.NewInMemoryRepo(),
		userRepo:      users.NewInMemoryRepo(),
		links:         &stubLinkIssuer{},
		now:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	service, err := handshake.NewBridgeService(
		handshake.Repos{Handshakes: f.handshakeRepo, Users: f.userRepo},
		f.links,
		handshake.Settings{
			BotUsername:   testBotUsername,
			WebhookSecret: testWebhookSecret,
			RedirectPath:  testRedirectPath,
		},
		handshake.WithNowTime(f.nowTime),
	)
	require.NoError(t, err)

	f.service = service
	return f
}

func testIdentity() users.TelegramIdentity {
	return users.TelegramIdentity{
		UserID:   987654321,
		FullName: "John Doe",
		Username: "johndoe",
	}
}

func TestIssueStateRequiresOrigin(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.IssueState("")
	require.ErrorIs(t, err, handshake.MissingOriginErr)
}

func TestIssueStateReturnsTokenAndDeepLink(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	assert.Regexp(t, stateTokenPattern, issued.State)
	assert.Equal(t, fmt.Sprintf("https://t.me/%s?start=auth_%s", testBotUsername, issued.State), issued.DeepLink)

	record, err := f.handshakeRepo.Get(issued.State, f.nowTime())
	require.NoError(t, err)
	assert.Equal(t, testOrigin, record.InitiatingOrigin)
	assert.False(t, record.Completed)
	assert.Equal(t, handshake.StateTTL, record.ExpiresAt.Sub(record.CreatedAt))
}

func TestIssuedStatesAreUnique(t *testing.T) {
	f := setupTestFixture(t)

	const n = 200
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		issued, err := f.service.IssueState(testOrigin)
		require.NoError(t, err)
		_, dup := seen[issued.State]
		require.False(t, dup, "duplicate state token issued")
		seen[issued.State] = struct{}{}
	}
}

// Scenario: issue then immediately resolve. The poll must report pending and
// leave the stored record untouched however often it is repeated.
func TestResolvePendingIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	before, err := f.handshakeRepo.Get(issued.State, f.nowTime())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		status, err := f.service.ResolveSession(issued.State)
		require.NoError(t, err)
		assert.False(t, status.Completed)
		assert.Empty(t, status.MagicLink)
	}

	after, err := f.handshakeRepo.Get(issued.State, f.nowTime())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// Scenario: the full happy path, then replay the resolve.
func TestCompleteThenResolveOnce(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	result, err := f.service.CompleteBridge(issued.State, testIdentity(), testWebhookSecret)
	require.NoError(t, err)
	assert.True(t, result.NewUser)
	assert.NotEmpty(t, result.UserID)

	status, err := f.service.ResolveSession(issued.State)
	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.NotEmpty(t, status.MagicLink)
	assert.Equal(t, result.UserID, status.UserID)
	assert.Contains(t, status.MagicLink, testOrigin+testRedirectPath)

	// The record is gone: a second resolve can never re-issue a credential.
	_, err = f.service.ResolveSession(issued.State)
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)
}

func TestCompleteKnownIdentityReusesUser(t *testing.T) {
	f := setupTestFixture(t)

	first, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)
	firstResult, err := f.service.CompleteBridge(first.State, testIdentity(), testWebhookSecret)
	require.NoError(t, err)

	second, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)
	secondResult, err := f.service.CompleteBridge(second.State, testIdentity(), testWebhookSecret)
	require.NoError(t, err)

	assert.True(t, firstResult.NewUser)
	assert.False(t, secondResult.NewUser)
	assert.Equal(t, firstResult.UserID, secondResult.UserID)
}

// Scenario: a completion with the wrong secret must not touch the handshake.
func TestCompleteRejectsWrongSecret(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	_, err = f.service.CompleteBridge(issued.State, testIdentity(), "wrong-secret")
	require.ErrorIs(t, err, handshake.BadWebhookSecretErr)

	status, err := f.service.ResolveSession(issued.State)
	require.NoError(t, err)
	assert.False(t, status.Completed)
}

func TestCompleteRejectedWhenNoSecretConfigured(t *testing.T) {
	f := setupTestFixture(t)

	service, err := handshake.NewBridgeService(
		handshake.Repos{Handshakes: f.handshakeRepo, Users: f.userRepo},
		f.links,
		handshake.Settings{BotUsername: testBotUsername, RedirectPath: testRedirectPath},
		handshake.WithNowTime(f.nowTime),
	)
	require.NoError(t, err)

	issued, err := service.IssueState(testOrigin)
	require.NoError(t, err)

	// An empty configured secret disables the callback outright.
	_, err = service.CompleteBridge(issued.State, testIdentity(), "")
	require.ErrorIs(t, err, handshake.BadWebhookSecretErr)
}

// Scenario: the token outlives its 3 minutes without ever being deleted.
func TestExpiryEnforcedOnReads(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	f.advance(handshake.StateTTL + time.Second)

	_, err = f.service.ResolveSession(issued.State)
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)

	_, err = f.service.CompleteBridge(issued.State, testIdentity(), testWebhookSecret)
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)
}

func TestCompleteTwiceSequential(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	_, err = f.service.CompleteBridge(issued.State, testIdentity(), testWebhookSecret)
	require.NoError(t, err)

	_, err = f.service.CompleteBridge(issued.State, testIdentity(), testWebhookSecret)
	require.ErrorIs(t, err, handshake.StateAlreadyUsedErr)
}

// Scenario: racing bot callbacks for the same state. Exactly one may win, and
// a new identity must yield exactly one user record.
func TestParallelCompletions(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)

	const workers = 16
	results := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CompleteBridge(issued.State, testIdentity(), testWebhookSecret)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, replays int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, handshake.StateAlreadyUsedErr):
			replays++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, replays)

	// Exactly one user record exists for the identity.
	_, created, err := f.userRepo.FindOrCreate(testIdentity())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestResolveRetriesAfterLinkIssuanceFailure(t *testing.T) {
	f := setupTestFixture(t)

	issued, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)
	_, err = f.service.CompleteBridge(issued.State, testIdentity(), testWebhookSecret)
	require.NoError(t, err)

	f.links.setErr(errors.New("issuer unavailable"))
	_, err = f.service.ResolveSession(issued.State)
	require.Error(t, err)
	require.NotErrorIs(t, err, handshake.InvalidOrExpiredStateErr)

	// The record survives a failed issuance so the next poll can retry.
	f.links.setErr(nil)
	status, err := f.service.ResolveSession(issued.State)
	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.NotEmpty(t, status.MagicLink)
}

func TestCancelPendingDeletesOnlyPending(t *testing.T) {
	f := setupTestFixture(t)

	pending, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)
	require.NoError(t, f.service.CancelPending(pending.State))
	_, err = f.service.ResolveSession(pending.State)
	require.ErrorIs(t, err, handshake.InvalidOrExpiredStateErr)

	completed, err := f.service.IssueState(testOrigin)
	require.NoError(t, err)
	_, err = f.service.CompleteBridge(completed.State, testIdentity(), testWebhookSecret)
	require.NoError(t, err)

	// Cleanup after completion is a no-op; the resolver still gets its turn.
	require.NoError(t, f.service.CancelPending(completed.State))
	status, err := f.service.ResolveSession(completed.State)
	require.NoError(t, err)
	assert.True(t, status.Completed)
}

func TestReapExpired(t *testing.T) {
	f := setupTestFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.service.IssueState(testOrigin)
		require.NoError(t, err)
	}

	n, err := f.service.ReapExpired()
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(handshake.StateTTL + time.Second)

	n, err = f.service.ReapExpired()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
