package store

import "docuchat/pkg/domain"

// Store persists users, sessions, document metadata, and chat messages.
// Embeddings live in the vector store, not here.
type Store interface {
	CreateUser(u domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	CreateSession(s domain.Session) error
	GetSession(id string) (domain.Session, bool, error)
	ListSessionsByUser(userID string) ([]domain.Session, error)

	CreateDocument(d domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocumentsBySession(sessionID string) ([]domain.Document, error)

	AppendMessage(m domain.Message) error
	// ListSessionMessages returns messages in chronological order.
	ListSessionMessages(sessionID string, limit int) ([]domain.Message, error)
	// ListRecentMessages returns the most recent messages, oldest first.
	ListRecentMessages(sessionID string, limit int) ([]domain.Message, error)
}
