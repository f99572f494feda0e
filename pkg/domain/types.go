package domain

import "time"

// SourceType identifies where an indexed piece of content came from.
type SourceType string

const (
	SourcePDFText      SourceType = "pdf_text"
	SourceImageCaption SourceType = "image_caption"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session scopes documents and chat history for one user.
type Session struct {
	ID        string    `json:"sessionId"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document is the metadata record for one ingested PDF. The row only exists
// once every embedding derived from the file has been persisted.
type Document struct {
	ID         string    `json:"documentId"`
	UserID     string    `json:"-"`
	SessionID  string    `json:"sessionId"`
	FileName   string    `json:"fileName"`
	StorageKey string    `json:"storageKey"`
	Pages      int       `json:"pages"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"-"`
	SessionID string      `json:"sessionId"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Source points at the document location a retrieved chunk came from.
type Source struct {
	DocumentID string     `json:"documentId"`
	FileName   string     `json:"fileName"`
	Page       int        `json:"page"`
	Source     SourceType `json:"source"`
}

// Answer is one completed chat turn.
type Answer struct {
	SessionID string    `json:"sessionId"`
	Reply     string    `json:"reply"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"createdAt"`
}
