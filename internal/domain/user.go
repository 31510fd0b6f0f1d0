package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an account in the domain layer.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateUserParams struct {
	Email        string
	PasswordHash string
}

// UserRepository is the content-store contract for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// GetUserWithPassword returns the user and stored hash for login.
	GetUserWithPassword(ctx context.Context, email string) (*User, string, error)
	UserExistsByEmail(ctx context.Context, email string) (bool, error)
}
