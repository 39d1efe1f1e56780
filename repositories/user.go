//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-broker/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (string, error)
	GetUser(username string) (User, error)
	UpdateProfile(username, name, bio string) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the repository-level representation of an account, profile
// fields included.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser persists a new account with an empty profile. The duplicate
// check runs inside the update transaction so two concurrent registrations
// of the same username cannot both succeed.
func (u *UserRepository) CreateUser(username, hashedPassword string) (string, error) {
	user := User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(username)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})
	return user.ID, err
}

func (u *UserRepository) GetUser(username string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err // callers map key-not-found to ErrInvalidCredentials
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateProfile rewrites the profile fields inside one transaction.
func (u *UserRepository) UpdateProfile(username, name, bio string) error {
	return u.db.Update(func(txn *badger.Txn) error {
		key := userKey(username)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var user User
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		}); err != nil {
			return err
		}

		user.Name = name
		user.Bio = bio
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}
