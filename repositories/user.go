//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"mentorlink/domain"
	apperrors "mentorlink/errors"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword, displayName string, role domain.Role) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUser(id string) (User, error)
	ListUsers() ([]User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the repository-level representation of a platform member.
// Equivalent to DiskMessage for the account domain.
type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"password_hash"`
	DisplayName  string      `json:"display_name"`
	Role         domain.Role `json:"role"`
	CreatedAt    time.Time   `json:"created_at"`
}

// CreateUser persists a new user and an email index entry.
// Keys: "user:{id}" holds the record, "email:{email}" resolves to the id so
// login stays a single lookup while ListUsers scans the "user:" prefix.
func (u UserRepository) CreateUser(email, hashedPassword, displayName string, role domain.Role) (string, error) {
	newID := uuid.NewString()
	record := User{
		ID:           newID,
		Email:        email,
		PasswordHash: hashedPassword,
		DisplayName:  displayName,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte("email:" + email)
		if _, err := txn.Get(emailKey); err == nil {
			return apperrors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey, []byte(newID)); err != nil {
			return err
		}
		return txn.Set([]byte("user:"+newID), data)
	})

	return newID, err
}

// GetUserByEmail resolves the email index and loads the user record.
func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var id string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("email:" + email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return User{}, apperrors.ErrUserNotFound
		}
		return User{}, err
	}
	return u.GetUser(id)
}

func (u UserRepository) GetUser(id string) (User, error) {
	var record User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return User{}, apperrors.ErrUserNotFound
		}
		return User{}, err
	}
	return record, nil
}

// ListUsers returns every registered member, used to seed peer selection.
func (u UserRepository) ListUsers() ([]User, error) {
	var records []User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record User
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

// ToDirectoryUser strips credentials before a record leaves the repository
// layer.
func ToDirectoryUser(record User) domain.User {
	return domain.User{
		ID:          record.ID,
		DisplayName: record.DisplayName,
		Role:        record.Role,
	}
}

// ToDirectoryUsers maps a full listing into directory entries.
func ToDirectoryUsers(records []User) []domain.User {
	return lo.Map(records, func(record User, _ int) domain.User {
		return ToDirectoryUser(record)
	})
}
