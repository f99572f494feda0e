package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/pkg/domain"
	"docuchat/pkg/vector"
)

// UploadResult is returned to the caller after a successful ingestion.
type UploadResult struct {
	Document      domain.Document
	ChunksIndexed int
}

// UploadDocument runs the full ingestion pipeline inside the request:
// parse, caption, embed, persist vectors, then write the metadata record.
// The Document row is created only after every embedding is persisted, so a
// visible document is always fully searchable. Any failure unwinds the
// partial state before returning.
func (a *App) UploadDocument(ctx context.Context, user domain.User, sessionID, fileName string, r io.Reader) (UploadResult, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return UploadResult{}, ErrFileRequired
	}
	if !strings.EqualFold(path.Ext(fileName), ".pdf") {
		return UploadResult{}, ErrUnsupportedFileType
	}
	session, err := a.ownedSession(user, sessionID)
	if err != nil {
		return UploadResult{}, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	texts, images, pages, err := processPDF(data)
	if err != nil {
		return UploadResult{}, err
	}

	docID := uuid.NewString()
	storageKey := buildStorageKey(user.ID, session.ID, docID)
	if err := a.objects.Put(ctx, storageKey, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return UploadResult{}, upstream("store document file", err)
	}

	meta := vector.Metadata{
		UserID:     user.ID,
		SessionID:  session.ID,
		DocumentID: docID,
		FileName:   fileName,
	}
	indexed, err := a.ingestDocument(ctx, meta, texts, images)
	if err != nil {
		a.unwindIngest(ctx, meta, storageKey)
		return UploadResult{}, err
	}

	doc := domain.Document{
		ID:         docID,
		UserID:     user.ID,
		SessionID:  session.ID,
		FileName:   fileName,
		StorageKey: storageKey,
		Pages:      pages,
		UploadedAt: time.Now().UTC(),
	}
	if err := a.store.CreateDocument(doc); err != nil {
		a.unwindIngest(ctx, meta, storageKey)
		return UploadResult{}, fmt.Errorf("save document: %w", err)
	}
	return UploadResult{Document: doc, ChunksIndexed: indexed}, nil
}

// unwindIngest removes whatever a failed ingestion left behind. Best-effort:
// the document row does not exist yet, so leftovers are unreachable either way.
func (a *App) unwindIngest(ctx context.Context, meta vector.Metadata, storageKey string) {
	_ = a.vectors.DeleteByDocument(ctx, vector.Filter{UserID: meta.UserID, SessionID: meta.SessionID}, meta.DocumentID)
	_ = a.objects.Delete(ctx, storageKey)
}

// ListDocuments returns documents of one owned session, newest first.
func (a *App) ListDocuments(user domain.User, sessionID string) ([]domain.Document, error) {
	session, err := a.ownedSession(user, sessionID)
	if err != nil {
		return nil, err
	}
	docs, err := a.store.ListDocumentsBySession(session.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// DocumentDownloadURL returns a pre-signed URL plus the original file name.
func (a *App) DocumentDownloadURL(ctx context.Context, user domain.User, documentID string) (string, string, error) {
	doc, ok, err := a.store.GetDocument(strings.TrimSpace(documentID))
	if err != nil {
		return "", "", fmt.Errorf("load document: %w", err)
	}
	if !ok || doc.UserID != user.ID {
		return "", "", ErrDocumentNotFound
	}
	url, err := a.objects.PresignGet(ctx, doc.StorageKey, a.presignExpiry)
	if err != nil {
		return "", "", upstream("presign download", err)
	}
	return url, doc.FileName, nil
}

func buildStorageKey(userID, sessionID, documentID string) string {
	return path.Join("documents", userID, sessionID, documentID+".pdf")
}
