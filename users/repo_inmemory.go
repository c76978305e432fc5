package users

import (
	"sync"

	"github.com/google/uuid"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	lock        sync.RWMutex
	users       map[string]*User
	telegramIds map[string]string // telegram ID to user ID
}

// NewInMemoryRepo creates a new in-memory user repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		users:       make(map[string]*User),
		telegramIds: make(map[string]string),
	}
}

// FindOrCreate resolves or provisions a user under a single lock, so racing
// completions for the same new identity create exactly one record.
func (ur *InMemoryRepo) FindOrCreate(ident TelegramIdentity) (*User, bool, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if userID, ok := ur.telegramIds[ident.Key()]; ok {
		return copyUser(ur.users[userID]), false, nil
	}

	user, err := Provision(ident)
	if err != nil {
		return nil, false, err
	}

	ur.users[user.ID] = user
	ur.telegramIds[user.TelegramID] = user.ID
	return copyUser(user), true, nil
}

func (ur *InMemoryRepo) GetByID(id string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, UserNotFoundErr
	}
	return copyUser(user), nil
}

func (ur *InMemoryRepo) GetByTelegramID(telegramID string) (*User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userID, ok := ur.telegramIds[telegramID]
	if !ok {
		return nil, UserNotFoundErr
	}
	return copyUser(ur.users[userID]), nil
}

func (ur *InMemoryRepo) Upsert(user *User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	ur.users[user.ID] = copyUser(user)
	if user.TelegramID != "" {
		ur.telegramIds[user.TelegramID] = user.ID
	}
	return nil
}

func (ur *InMemoryRepo) Delete(id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[id]
	if !ok {
		return UserNotFoundErr
	}
	delete(ur.telegramIds, user.TelegramID)
	delete(ur.users, id)
	return nil
}

// copyUser returns a copy to prevent external modifications
func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
