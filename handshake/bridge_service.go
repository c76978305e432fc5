package handshake

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dkozyrev/tg-auth-bridge/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LinkIssuer mints the single-use login credential handed to the browser once
// a handshake resolves. Implemented by magiclink.Manager.
type LinkIssuer interface {
	Issue(userID, email, redirectTo string) (string, error)
}

// Repos holds all repository dependencies for the BridgeService
type Repos struct {
	Handshakes Repo       // Repository for handshake flow state
	Users      users.Repo // Repository for user records
}

// Settings carries the deployment-specific values of the bridge.
type Settings struct {
	BotUsername   string // Telegram bot the deep link points at
	WebhookSecret string // Pre-shared secret authenticating the bot callback
	RedirectPath  string // Path appended to the initiating origin after login
}

// IssuedState is the result of starting a handshake.
type IssuedState struct {
	State    string // The state token the client polls with
	DeepLink string // Hand-off target shown to the user
}

// BridgeResult is the outcome of a bot-side completion.
type BridgeResult struct {
	UserID  string
	NewUser bool
}

// SessionStatus is the result of a poll. While the approval is outstanding
// only Completed=false is set; once ready it carries the magic link exactly
// once.
type SessionStatus struct {
	Completed bool
	MagicLink string
	UserID    string
}

// BridgeService coordinates the Telegram login handshake: issuing state
// tokens, accepting the bot's completion callback, and resolving polls into
// single-use magic links.
type BridgeService struct {
	repos    Repos
	links    LinkIssuer
	settings Settings
	nowTime  func() time.Time // nowTime function (injectable for testing)
}

// BridgeServiceOption defines a function type to modify the BridgeService instance.
type BridgeServiceOption func(*BridgeService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) BridgeServiceOption {
	return func(bs *BridgeService) {
		bs.nowTime = nowFunc
	}
}

// NewBridgeService initializes a new BridgeService with required dependencies.
func NewBridgeService(repos Repos, links LinkIssuer, settings Settings, options ...BridgeServiceOption) (*BridgeService, error) {
	if repos.Handshakes == nil {
		return nil, errors.New("[NewBridgeService] Handshakes repo is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewBridgeService] Users repo is required")
	}
	if links == nil {
		return nil, errors.New("[NewBridgeService] link issuer is required")
	}
	if settings.BotUsername == "" {
		return nil, errors.New("[NewBridgeService] bot username is required")
	}

	bs := &BridgeService{
		repos:    repos,
		links:    links,
		settings: settings,
		nowTime:  time.Now,
	}

	for _, opt := range options {
		opt(bs)
	}

	return bs, nil
}

// IssueState starts a handshake: it stores a fresh state token with a
// 3-minute lifetime and the caller's origin, and returns the Telegram deep
// link that carries the token into the approval channel.
func (bs *BridgeService) IssueState(initiatingOrigin string) (*IssuedState, error) {
	if initiatingOrigin == "" {
		return nil, MissingOriginErr
	}

	now := bs.nowTime()
	state, err := newStateToken()
	if err != nil {
		return nil, errors.Wrap(err, "[BridgeService.IssueState] token generation")
	}

	record := &Handshake{
		State:            state,
		CreatedAt:        now,
		ExpiresAt:        now.Add(StateTTL),
		InitiatingOrigin: initiatingOrigin,
	}

	if err := bs.repos.Handshakes.Insert(record); err != nil {
		// A 48-hex-char collision is all but impossible; retry once anyway
		// before surfacing the failure.
		if !errors.Is(err, DuplicateStateErr) {
			return nil, errors.Wrap(err, "[BridgeService.IssueState] insert")
		}
		if record.State, err = newStateToken(); err != nil {
			return nil, errors.Wrap(err, "[BridgeService.IssueState] token regeneration")
		}
		if err := bs.repos.Handshakes.Insert(record); err != nil {
			return nil, errors.Wrap(err, "[BridgeService.IssueState] insert retry")
		}
	}

	return &IssuedState{
		State:    record.State,
		DeepLink: fmt.Sprintf("https://t.me/%s?start=auth_%s", bs.settings.BotUsername, record.State),
	}, nil
}

// CompleteBridge is the trusted callback fired by the bot once a human
// approves the login. It authenticates the caller with the pre-shared
// webhook secret, resolves or provisions the user, and flips the handshake
// to completed at most once.
func (bs *BridgeService) CompleteBridge(state string, ident users.TelegramIdentity, secretProof string) (*BridgeResult, error) {
	if bs.settings.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secretProof), []byte(bs.settings.WebhookSecret)) != 1 {
		return nil, BadWebhookSecretErr
	}

	now := bs.nowTime()
	record, err := bs.repos.Handshakes.Get(state, now)
	if err != nil {
		return nil, err
	}
	if record.Completed {
		return nil, StateAlreadyUsedErr
	}

	user, created, err := bs.repos.Users.FindOrCreate(ident)
	if err != nil {
		return nil, errors.Wrap(err, "[BridgeService.CompleteBridge] FindOrCreate")
	}

	// Compare-and-set: the repo re-checks expiry and the completed flag under
	// its own lock, so a racing completion loses here rather than resolving a
	// second user onto the same state.
	if err := bs.repos.Handshakes.MarkCompleted(state, user.ID, now); err != nil {
		return nil, err
	}

	return &BridgeResult{UserID: user.ID, NewUser: created}, nil
}

// ResolveSession is the poll endpoint's core. It is free of side effects
// while the approval is outstanding; once the handshake is completed it mints
// the magic link and deletes the record, so a second resolve for the same
// state can never re-issue a credential.
func (bs *BridgeService) ResolveSession(state string) (*SessionStatus, error) {
	record, err := bs.repos.Handshakes.Get(state, bs.nowTime())
	if err != nil {
		return nil, err
	}

	if !record.Completed {
		return &SessionStatus{Completed: false}, nil
	}

	if record.InitiatingOrigin == "" {
		return nil, errors.New("[BridgeService.ResolveSession] completed handshake has no initiating origin")
	}

	user, err := bs.repos.Users.GetByID(record.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[BridgeService.ResolveSession] GetByID")
	}

	redirectTo := record.InitiatingOrigin + bs.settings.RedirectPath
	link, err := bs.links.Issue(user.ID, user.Email, redirectTo)
	if err != nil {
		// The record stays in place so the next poll can retry issuance.
		return nil, errors.Wrap(err, "[BridgeService.ResolveSession] link issuance")
	}

	if err := bs.repos.Handshakes.Delete(state); err != nil {
		// The credential is already out; expiry still bounds the record.
		log.Warn().Err(err).Msg("failed to delete resolved handshake")
	}

	return &SessionStatus{
		Completed: true,
		MagicLink: link,
		UserID:    user.ID,
	}, nil
}

// CancelPending is the client's best-effort cleanup when it gives up on a
// handshake. Completed records are left untouched.
func (bs *BridgeService) CancelPending(state string) error {
	if err := bs.repos.Handshakes.DeleteIfPending(state); err != nil {
		return errors.Wrap(err, "[BridgeService.CancelPending] DeleteIfPending")
	}
	return nil
}

// ReapExpired removes handshakes past their lifetime. Reads already filter on
// expiry, this just keeps the store from accumulating abandoned records.
func (bs *BridgeService) ReapExpired() (int, error) {
	return bs.repos.Handshakes.DeleteExpired(bs.nowTime())
}

func newStateToken() (string, error) {
	buf := make([]byte, StateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
