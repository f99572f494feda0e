package vector

import "context"

// Metadata is attached to every record and drives tenant isolation:
// queries always filter on UserID and SessionID.
type Metadata struct {
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId"`
	DocumentID string `json:"documentId"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	FileName   string `json:"fileName"`
}

// Record is one embedded piece of content (text chunk or image caption).
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Filter restricts a similarity search to one user's session. Both fields
// are required; Query rejects an incomplete filter instead of widening it.
type Filter struct {
	UserID    string
	SessionID string
}

// Store is the narrow vector database surface the pipeline depends on.
// Result ordering follows the backend's nearest-neighbor order and is only
// consistent within a single query, not across calls.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, embedding []float32, filter Filter, topK int) ([]Record, error)
	DeleteByDocument(ctx context.Context, filter Filter, documentID string) error
}
