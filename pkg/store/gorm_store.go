package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"docuchat/pkg/domain"
)

const migrateLockID int64 = 52715271

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &SessionModel{}, &DocumentModel{}, &MessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// DB exposes the underlying handle so the vector store can share the pool.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a new user.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateSession inserts a new session.
func (s *GormStore) CreateSession(sess domain.Session) error {
	model := sessionToModel(sess)
	return s.db.Create(&model).Error
}

// GetSession retrieves a session.
func (s *GormStore) GetSession(id string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByUser returns the user's sessions, newest first.
func (s *GormStore) ListSessionsByUser(userID string) ([]domain.Session, error) {
	var models []SessionModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Session, 0, len(models))
	for _, m := range models {
		items = append(items, sessionFromModel(m))
	}
	return items, nil
}

// CreateDocument inserts the document metadata record.
func (s *GormStore) CreateDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Create(&model).Error
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocumentsBySession returns documents of one session, newest first.
func (s *GormStore) ListDocumentsBySession(sessionID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("uploaded_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Document, 0, len(models))
	for _, m := range models {
		items = append(items, documentFromModel(m))
	}
	return items, nil
}

// AppendMessage records a chat message.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// ListSessionMessages returns messages in chronological order.
func (s *GormStore) ListSessionMessages(sessionID string, limit int) ([]domain.Message, error) {
	query := s.db.Where("session_id = ?", sessionID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []MessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, nil
}

// ListRecentMessages returns the newest messages reversed to chronological order.
func (s *GormStore) ListRecentMessages(sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func sessionToModel(s domain.Session) SessionModel {
	return SessionModel{
		ID:        s.ID,
		UserID:    s.UserID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
	}
}

func sessionFromModel(m SessionModel) domain.Session {
	return domain.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:         d.ID,
		UserID:     d.UserID,
		SessionID:  d.SessionID,
		FileName:   d.FileName,
		StorageKey: d.StorageKey,
		Pages:      d.Pages,
		UploadedAt: d.UploadedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:         m.ID,
		UserID:     m.UserID,
		SessionID:  m.SessionID,
		FileName:   m.FileName,
		StorageKey: m.StorageKey,
		Pages:      m.Pages,
		UploadedAt: m.UploadedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:        msg.ID,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		UserID:    m.UserID,
		SessionID: m.SessionID,
		Role:      domain.MessageRole(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
