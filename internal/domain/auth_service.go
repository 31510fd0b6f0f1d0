package domain

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/storyloop/backend/internal/auth"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthService handles registration and login. Kept deliberately narrow:
// token validation itself lives in the auth package and the middleware.
type AuthService struct {
	users UserRepository
	jwt   *auth.JWTManager
}

func NewAuthService(users UserRepository, jwt *auth.JWTManager) *AuthService {
	return &AuthService{users: users, jwt: jwt}
}

// Register creates an account and returns the user plus an access token.
func (s *AuthService) Register(ctx context.Context, email, password string) (*User, string, error) {
	exists, err := s.users.UserExistsByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if exists {
		return nil, "", ErrUserAlreadyExists
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.CreateUser(ctx, CreateUserParams{Email: email, PasswordHash: hash})
	if err != nil {
		return nil, "", err
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Login verifies credentials and returns the user plus an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, hash, err := s.users.GetUserWithPassword(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := auth.VerifyPassword(password, hash); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Me returns the account for an authenticated user ID.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.users.GetUserByID(ctx, userID)
}
