package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type SessionModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type DocumentModel struct {
	ID         string    `gorm:"primaryKey"`
	UserID     string    `gorm:"not null;index"`
	SessionID  string    `gorm:"not null;index"`
	FileName   string    `gorm:"not null"`
	StorageKey string    `gorm:"not null"`
	Pages      int       `gorm:"not null"`
	UploadedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	SessionID string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
