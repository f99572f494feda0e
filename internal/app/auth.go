package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/pkg/auth"
	"docuchat/pkg/domain"
)

// Register creates a new user account. Duplicate emails fail with
// ErrEmailAlreadyExists, never a second user row.
func (a *App) Register(email, password string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.CreateUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Login validates credentials and returns the user on success.
func (a *App) Login(email, password string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UserByID resolves an authenticated subject to a user record.
func (a *App) UserByID(id string) (domain.User, bool, error) {
	return a.store.GetUserByID(id)
}
