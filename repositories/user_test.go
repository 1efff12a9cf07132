package repositories

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"mentorlink/domain"
	"mentorlink/errors"
)

func TestUserRepository_CreateAndLookup(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	id, err := repository.CreateUser("alice@example.com", "hash", "Alice", domain.RoleMentor)
	req.NoError(err)
	req.NotEmpty(id)

	byEmail, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(id, byEmail.ID)
	req.Equal("Alice", byEmail.DisplayName)
	req.Equal(domain.RoleMentor, byEmail.Role)

	byID, err := repository.GetUser(id)
	req.NoError(err)
	req.Equal(byEmail, byID)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	_, err := repository.CreateUser("alice@example.com", "hash", "Alice", domain.RoleStudent)
	req.NoError(err)

	_, err = repository.CreateUser("alice@example.com", "hash2", "Alice Again", domain.RoleStudent)
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestUserRepository_NotFound(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	_, err := repository.GetUserByEmail("nobody@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = repository.GetUser("missing-id")
	req.ErrorIs(err, errors.ErrUserNotFound)
}

func TestUserRepository_ListUsers(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	_, err := repository.CreateUser("alice@example.com", "hash", "Alice", domain.RoleMentor)
	req.NoError(err)
	_, err = repository.CreateUser("bob@example.com", "hash", "Bob", domain.RoleStudent)
	req.NoError(err)

	records, err := repository.ListUsers()
	req.NoError(err)
	req.Len(records, 2)

	directory := ToDirectoryUsers(records)
	names := lo.Map(directory, func(u domain.User, _ int) string { return u.DisplayName })
	req.ElementsMatch([]string{"Alice", "Bob"}, names)
	// Credentials never leave the repository layer
	for _, record := range directory {
		req.NotEmpty(record.ID)
	}
}
