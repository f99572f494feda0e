package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/pkg/domain"
)

// CreateSession opens a new session owned by the user.
func (a *App) CreateSession(user domain.User, name string) (domain.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Session{}, ErrSessionNameRequired
	}
	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateSession(session); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// ListSessions returns the caller's sessions, newest first.
func (a *App) ListSessions(user domain.User) ([]domain.Session, error) {
	items, err := a.store.ListSessionsByUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return items, nil
}

// ownedSession loads a session and verifies the caller owns it. Unknown and
// foreign sessions are indistinguishable to the caller.
func (a *App) ownedSession(user domain.User, sessionID string) (domain.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, ErrSessionNotFound
	}
	session, ok, err := a.store.GetSession(sessionID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !ok || session.UserID != user.ID {
		return domain.Session{}, ErrSessionNotFound
	}
	return session, nil
}
