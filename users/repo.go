package users

import "errors"

var UserNotFoundErr = errors.New("user not found")

// Repo defines the storage operations the bridge needs for user records.
type Repo interface {
	// FindOrCreate resolves a Telegram identity to a user record, provisioning
	// a minimal one when no record exists. The lookup and creation are a
	// single atomic operation: two concurrent calls for the same identity must
	// yield the same record, with created=true for exactly one caller.
	FindOrCreate(ident TelegramIdentity) (user *User, created bool, err error)

	// GetByID retrieves a user by its opaque ID
	GetByID(id string) (*User, error)

	// GetByTelegramID retrieves a user by its Telegram identity key
	GetByTelegramID(telegramID string) (*User, error)

	// Upsert creates or updates a user record
	Upsert(user *User) error

	// Delete removes a user by ID
	Delete(id string) error
}
