package services

import (
	"fmt"
	"time"

	"chat-broker/auth"
	"chat-broker/errors"
	"chat-broker/repositories"
)

type IAuthService interface {
	Register(username, password string) (Token, error)
	Login(username, password string) (Token, error)
	ResolveToken(token string) (string, error)
	Profile(username string) (repositories.User, error)
	UpdateProfile(username, name, bio string) error
}

type Token string

// AuthService owns account lifecycle and acts as the Identity Resolver:
// ResolveToken is the single place a session token becomes a verified
// username.
type AuthService struct {
	users         repositories.IUserRepository
	tokenKey      []byte
	tokenDuration time.Duration
}

func NewAuthService(users repositories.IUserRepository, tokenKey []byte, tokenDuration time.Duration) *AuthService {
	return &AuthService{users: users, tokenKey: tokenKey, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(username, password string) (Token, error) {
	// Validate business rules before any expensive cryptographic work.
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, Password: password}); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hash in the service layer so the repository never sees plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	if _, err := s.users.CreateUser(username, hashedPassword); err != nil {
		return "", err // propagates ErrUserAlreadyExists
	}

	token, err := auth.GenerateToken(username, s.tokenDuration, s.tokenKey)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

func (s *AuthService) Login(username, password string) (Token, error) {
	user, err := s.users.GetUser(username)
	if err != nil {
		// Generic error to prevent user enumeration.
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(username, s.tokenDuration, s.tokenKey)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

// ResolveToken implements contract.IIdentityResolver.
func (s *AuthService) ResolveToken(token string) (string, error) {
	claims, err := auth.ValidateToken(token, s.tokenKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	return claims.Username, nil
}

func (s *AuthService) Profile(username string) (repositories.User, error) {
	return s.users.GetUser(username)
}

func (s *AuthService) UpdateProfile(username, name, bio string) error {
	return s.users.UpdateProfile(username, name, bio)
}
