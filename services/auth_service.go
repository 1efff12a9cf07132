package services

import (
	"fmt"

	"mentorlink/auth"
	"mentorlink/domain"
	"mentorlink/errors"
	"mentorlink/repositories"
)

type IAuthService interface {
	Register(cmd RegisterCommand) (Token, error)
	Login(email, password string) (Token, error)
	Identify(token string) (*auth.CustomClaims, error)
	Directory() ([]domain.User, error)
}

type Token string

// RegisterCommand carries everything needed to open an account.
type RegisterCommand struct {
	Email       string
	Password    string
	DisplayName string
	Role        domain.Role
}

type AuthService struct {
	userRepository repositories.IUserRepository
	authenticator  *auth.Authenticator
}

func NewAuthService(repo repositories.IUserRepository, authenticator *auth.Authenticator) IAuthService {
	return &AuthService{userRepository: repo, authenticator: authenticator}
}

func (s *AuthService) Register(cmd RegisterCommand) (Token, error) {
	valReq := auth.RegisterRequest{
		Email:       cmd.Email,
		Password:    cmd.Password,
		DisplayName: cmd.DisplayName,
		Role:        string(cmd.Role),
	}

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(cmd.Password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	userID, err := s.userRepository.CreateUser(cmd.Email, hashedPassword, cmd.DisplayName, cmd.Role)
	if err != nil {
		return "", err // Will propagate ErrUserAlreadyExists if email is taken
	}

	// 4. Generate the initial session token
	token, err := s.authenticator.GenerateToken(userID, cmd.DisplayName, string(cmd.Role))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	// 1. Retrieve user by email from storage
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	token, err := s.authenticator.GenerateToken(user.ID, user.DisplayName, string(user.Role))
	if err != nil {
		return "", errors.ErrTokenGeneration
	}

	return Token(token), nil
}

// Identify resolves a bearer token to its claims. Channels call it once,
// before any subscription is accepted.
func (s *AuthService) Identify(token string) (*auth.CustomClaims, error) {
	return s.authenticator.ValidateToken(token)
}

// Directory lists every registered member so a client can pick a peer to
// talk to.
func (s *AuthService) Directory() ([]domain.User, error) {
	records, err := s.userRepository.ListUsers()
	if err != nil {
		return nil, err
	}
	return repositories.ToDirectoryUsers(records), nil
}
