package app

import (
	"context"
	"errors"
	"testing"

	"docuchat/pkg/domain"
	"docuchat/pkg/vector"
)

func TestIngestDocumentTagsMetadata(t *testing.T) {
	a, deps := newTestApp(t)
	meta := vector.Metadata{
		UserID:     "user-1",
		SessionID:  "session-1",
		DocumentID: "doc-1",
		FileName:   "report.pdf",
	}
	texts := []pageText{
		{Page: 1, Content: "first page text"},
		{Page: 2, Content: "second page text"},
	}
	images := []pageImage{
		{Page: 2, Data: []byte{0xFF, 0xD8}, MimeType: "image/jpeg"},
	}

	indexed, err := a.ingestDocument(context.Background(), meta, texts, images)
	if err != nil {
		t.Fatalf("ingestDocument: %v", err)
	}
	if indexed != 3 {
		t.Fatalf("indexed = %d, want 3", indexed)
	}
	if deps.vectors.count() != 3 {
		t.Fatalf("stored records = %d, want 3", deps.vectors.count())
	}

	bySource := map[string]int{}
	for _, rec := range deps.vectors.records {
		if rec.Metadata.UserID != "user-1" || rec.Metadata.SessionID != "session-1" || rec.Metadata.DocumentID != "doc-1" {
			t.Fatalf("record missing tenant metadata: %+v", rec.Metadata)
		}
		if rec.Metadata.FileName != "report.pdf" {
			t.Fatalf("fileName = %q", rec.Metadata.FileName)
		}
		if rec.ID == "" || len(rec.Embedding) == 0 {
			t.Fatalf("record not fully populated: %+v", rec)
		}
		bySource[rec.Metadata.Source]++
	}
	if bySource[string(domain.SourcePDFText)] != 2 {
		t.Fatalf("pdf_text records = %d, want 2", bySource[string(domain.SourcePDFText)])
	}
	if bySource[string(domain.SourceImageCaption)] != 1 {
		t.Fatalf("image_caption records = %d, want 1", bySource[string(domain.SourceImageCaption)])
	}
	if deps.captioner.calls != 1 {
		t.Fatalf("caption calls = %d, want 1", deps.captioner.calls)
	}
}

func TestIngestDocumentUsesDocumentTaskType(t *testing.T) {
	a, deps := newTestApp(t)
	_, err := a.ingestDocument(context.Background(), vector.Metadata{
		UserID: "u", SessionID: "s", DocumentID: "d", FileName: "f.pdf",
	}, []pageText{{Page: 1, Content: "content"}}, nil)
	if err != nil {
		t.Fatalf("ingestDocument: %v", err)
	}
	for _, taskType := range deps.embedder.taskTypes {
		if taskType != taskTypeDocument {
			t.Fatalf("taskType = %q, want %q", taskType, taskTypeDocument)
		}
	}
}

func TestIngestDocumentEmptyContentIndexesNothing(t *testing.T) {
	a, deps := newTestApp(t)
	indexed, err := a.ingestDocument(context.Background(), vector.Metadata{
		UserID: "u", SessionID: "s", DocumentID: "d", FileName: "f.pdf",
	}, nil, nil)
	if err != nil {
		t.Fatalf("ingestDocument: %v", err)
	}
	if indexed != 0 {
		t.Fatalf("indexed = %d, want 0", indexed)
	}
	if deps.vectors.count() != 0 {
		t.Fatalf("stored records = %d, want 0", deps.vectors.count())
	}
}

func TestIngestDocumentCaptionFailureFailsWhole(t *testing.T) {
	a, deps := newTestApp(t)
	deps.captioner.err = errors.New("vision model down")

	_, err := a.ingestDocument(context.Background(), vector.Metadata{
		UserID: "u", SessionID: "s", DocumentID: "d", FileName: "f.pdf",
	}, []pageText{{Page: 1, Content: "text that would otherwise index"}},
		[]pageImage{{Page: 1, Data: []byte{1}, MimeType: "image/png"}})

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if deps.vectors.count() != 0 {
		t.Fatalf("stored records = %d, want 0 after caption failure", deps.vectors.count())
	}
}

func TestIngestDocumentUpsertFailure(t *testing.T) {
	a, deps := newTestApp(t)
	deps.vectors.upsertErr = errors.New("pgvector down")

	_, err := a.ingestDocument(context.Background(), vector.Metadata{
		UserID: "u", SessionID: "s", DocumentID: "d", FileName: "f.pdf",
	}, []pageText{{Page: 1, Content: "text"}}, nil)

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
}

func TestIngestDocumentPrefersBatchEmbedding(t *testing.T) {
	a, deps := newTestApp(t)
	_, err := a.ingestDocument(context.Background(), vector.Metadata{
		UserID: "u", SessionID: "s", DocumentID: "d", FileName: "f.pdf",
	}, []pageText{{Page: 1, Content: "one"}, {Page: 2, Content: "two"}}, nil)
	if err != nil {
		t.Fatalf("ingestDocument: %v", err)
	}
	if deps.embedder.batchCalls == 0 {
		t.Fatalf("batch endpoint not used")
	}
	if deps.embedder.calls != 0 {
		t.Fatalf("single-text calls = %d, want 0 when batching is available", deps.embedder.calls)
	}
}

func TestValidateVectors(t *testing.T) {
	if _, err := validateVectors([][]float32{{1}, {2}}, 3); err == nil {
		t.Fatalf("expected count mismatch error")
	}
	if _, err := validateVectors([][]float32{{1}, {}}, 2); err == nil {
		t.Fatalf("expected empty embedding error")
	}
	if _, err := validateVectors([][]float32{{1, 2}, {3}}, 2); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
	if _, err := validateVectors([][]float32{{1, 2}, {3, 4}}, 2); err != nil {
		t.Fatalf("valid vectors rejected: %v", err)
	}
}
