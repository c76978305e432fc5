package users

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	emailSuffixLength    = 9
	usernameSuffixLength = 6
	placeholderDomain    = "local.local"
)

// TelegramIdentity is the external identity delivered by the approval bot
// once a human confirms the login in chat.
type TelegramIdentity struct {
	UserID   int64  `json:"telegram_user_id"`
	FullName string `json:"telegram_full_name"`
	Username string `json:"telegram_username"`
}

// Key returns the lookup key used to bind a Telegram identity to a user record.
func (ti TelegramIdentity) Key() string {
	return strconv.FormatInt(ti.UserID, 10)
}

type User struct {
	ID               string    `json:"id,omitempty"`                // Unique identifier for the user
	Email            string    `json:"email,omitempty"`             // Placeholder email for provisioned accounts
	Username         string    `json:"username,omitempty"`          // Generated display handle
	Name             string    `json:"name,omitempty"`              // Full name as reported by Telegram
	PasswordHash     string    `json:"-"`                           // Hashed placeholder password - never serialize
	TelegramID       string    `json:"telegram_id,omitempty"`       // Telegram numeric user ID, stored as string
	TelegramUsername string    `json:"telegram_username,omitempty"` // Telegram @username, may be empty
	CreatedAt        time.Time `json:"created_at,omitempty"`        // When the record was provisioned
}

// Provision builds a minimal user record for a Telegram identity that has no
// existing account. The email and password are random placeholders never
// intended for interactive login; access is always via the bridge.
func Provision(ident TelegramIdentity) (*User, error) {
	emailSuffix, err := randomString(alphanumeric, emailSuffixLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Provision] email suffix")
	}

	usernameSuffix, err := randomString(digits, usernameSuffixLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Provision] username suffix")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(uuid.New().String()), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Wrap(err, "[Provision] bcrypt.GenerateFromPassword")
	}

	return &User{
		ID:               uuid.New().String(),
		Email:            fmt.Sprintf("%s@%s", emailSuffix, placeholderDomain),
		Username:         "id" + usernameSuffix,
		Name:             ident.FullName,
		PasswordHash:     string(passwordHash),
		TelegramID:       ident.Key(),
		TelegramUsername: ident.Username,
		CreatedAt:        time.Now(),
	}, nil
}

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits       = "0123456789"
)

func randomString(charset string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}
