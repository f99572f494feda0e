package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrateLockID int64 = 48124812

// EmbeddingModel is the GORM model backing the pgvector store.
type EmbeddingModel struct {
	ID         string           `gorm:"primaryKey"`
	UserID     string           `gorm:"not null;index:idx_embeddings_tenant"`
	SessionID  string           `gorm:"not null;index:idx_embeddings_tenant"`
	DocumentID string           `gorm:"not null;index"`
	Content    string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt  time.Time        `gorm:"not null"`
}

func (EmbeddingModel) TableName() string { return "embeddings" }

// PgStore implements Store on Postgres with the pgvector extension.
type PgStore struct {
	db  *gorm.DB
	dim int
}

// NewPgStore prepares the embeddings table for the configured dimension.
// Migration runs under an advisory lock so multiple instances can start
// concurrently.
func NewPgStore(db *gorm.DB, dim int) (*PgStore, error) {
	if db == nil {
		return nil, errors.New("db handle required")
	}
	if dim <= 0 {
		return nil, errors.New("embedding dimension required")
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&EmbeddingModel{}); err != nil {
			return fmt.Errorf("auto migrate embeddings: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(
			"ALTER TABLE embeddings ALTER COLUMN embedding TYPE vector(%d)", dim,
		)).Error; err != nil {
			return fmt.Errorf("alter embedding type: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &PgStore{db: db, dim: dim}, nil
}

// Upsert persists all records in one logical batch.
func (s *PgStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]EmbeddingModel, 0, len(records))
	for _, rec := range records {
		if err := s.validateDim(rec.Embedding); err != nil {
			return err
		}
		model, err := toModel(rec)
		if err != nil {
			return err
		}
		models = append(models, model)
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(&models, 200).Error
}

// Query returns the topK nearest records by cosine distance, restricted to
// the filter's tenant scope.
func (s *PgStore) Query(ctx context.Context, embedding []float32, filter Filter, topK int) ([]Record, error) {
	if filter.UserID == "" || filter.SessionID == "" {
		return nil, errors.New("vector query requires user and session filter")
	}
	if topK <= 0 {
		return []Record{}, nil
	}
	if err := s.validateDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var models []EmbeddingModel
	if err := s.db.WithContext(ctx).Model(&EmbeddingModel{}).
		Where("user_id = ? AND session_id = ? AND embedding IS NOT NULL", filter.UserID, filter.SessionID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(topK).
		Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(models))
	for _, model := range models {
		records = append(records, fromModel(model))
	}
	return records, nil
}

// DeleteByDocument removes all records for one document within the tenant
// scope. Used to unwind a failed ingestion.
func (s *PgStore) DeleteByDocument(ctx context.Context, filter Filter, documentID string) error {
	if filter.UserID == "" || filter.SessionID == "" || documentID == "" {
		return errors.New("vector delete requires user, session, and document")
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ? AND document_id = ?", filter.UserID, filter.SessionID, documentID).
		Delete(&EmbeddingModel{}).Error
}

func (s *PgStore) validateDim(embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("embedding vector is empty")
	}
	if s.dim > 0 && len(embedding) != s.dim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.dim)
	}
	return nil
}

func toModel(rec Record) (EmbeddingModel, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return EmbeddingModel{}, fmt.Errorf("marshal metadata: %w", err)
	}
	vec := pgvector.NewVector(rec.Embedding)
	return EmbeddingModel{
		ID:         rec.ID,
		UserID:     rec.Metadata.UserID,
		SessionID:  rec.Metadata.SessionID,
		DocumentID: rec.Metadata.DocumentID,
		Content:    rec.Content,
		Metadata:   meta,
		Embedding:  &vec,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func fromModel(model EmbeddingModel) Record {
	var meta Metadata
	if len(model.Metadata) > 0 {
		_ = json.Unmarshal(model.Metadata, &meta)
	}
	rec := Record{
		ID:       model.ID,
		Content:  model.Content,
		Metadata: meta,
	}
	if model.Embedding != nil {
		rec.Embedding = model.Embedding.Slice()
	}
	return rec
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
