package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"docuchat/pkg/domain"
	"docuchat/pkg/store"
	"docuchat/pkg/vector"
)

// fakeVectorStore keeps records in memory and enforces the same mandatory
// tenant filter as the real store.
type fakeVectorStore struct {
	mu      sync.Mutex
	records []vector.Record

	upsertErr error
	queryErr  error
}

func (f *fakeVectorStore) Upsert(_ context.Context, records []vector.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeVectorStore) Query(_ context.Context, _ []float32, filter vector.Filter, topK int) ([]vector.Record, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if filter.UserID == "" || filter.SessionID == "" {
		return nil, errors.New("tenant filter required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vector.Record
	for _, rec := range f.records {
		if rec.Metadata.UserID != filter.UserID || rec.Metadata.SessionID != filter.SessionID {
			continue
		}
		out = append(out, rec)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (f *fakeVectorStore) DeleteByDocument(_ context.Context, filter vector.Filter, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.records[:0]
	for _, rec := range f.records {
		if rec.Metadata.DocumentID == documentID &&
			rec.Metadata.UserID == filter.UserID &&
			rec.Metadata.SessionID == filter.SessionID {
			continue
		}
		kept = append(kept, rec)
	}
	f.records = kept
	return nil
}

func (f *fakeVectorStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// fakeObjectStore records puts and deletes by key.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.local/" + key, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeEmbedder returns a fixed-dimension vector per call and records the task
// types it saw.
type fakeEmbedder struct {
	mu        sync.Mutex
	taskTypes []string
	calls     int
	err       error
}

func (f *fakeEmbedder) EmbedText(_ context.Context, _ string, taskType string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.taskTypes = append(f.taskTypes, taskType)
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeBatchEmbedder additionally implements the batch interface.
type fakeBatchEmbedder struct {
	fakeEmbedder
	batchCalls int
}

func (f *fakeBatchEmbedder) EmbedTexts(_ context.Context, texts []string, taskType string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.taskTypes = append(f.taskTypes, taskType)
	out := make([][]float32, 0, len(texts))
	for range texts {
		out = append(out, []float32{0.1, 0.2, 0.3})
	}
	return out, nil
}

type fakeGenerator struct {
	mu          sync.Mutex
	reply       string
	err         error
	lastSystem  string
	lastPrompt  string
	lastMaxToks int
}

func (f *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSystem = systemPrompt
	f.lastPrompt = userPrompt
	f.lastMaxToks = maxTokens
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "stub reply", nil
	}
	return f.reply, nil
}

type fakeCaptioner struct {
	mu      sync.Mutex
	caption string
	err     error
	calls   int
}

func (f *fakeCaptioner) CaptionImage(_ context.Context, _ []byte, _ string, _ string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.caption == "" {
		return "a bar chart of quarterly revenue", nil
	}
	return f.caption, nil
}

type testDeps struct {
	store     *store.MemoryStore
	vectors   *fakeVectorStore
	objects   *fakeObjectStore
	embedder  *fakeBatchEmbedder
	generator *fakeGenerator
	captioner *fakeCaptioner
}

func newTestApp(t *testing.T) (*App, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:     store.NewMemoryStore(),
		vectors:   &fakeVectorStore{},
		objects:   newFakeObjectStore(),
		embedder:  &fakeBatchEmbedder{},
		generator: &fakeGenerator{},
		captioner: &fakeCaptioner{},
	}
	a, err := New(Config{
		Store:     deps.store,
		Vectors:   deps.vectors,
		Objects:   deps.objects,
		Embedder:  deps.embedder,
		Generator: deps.generator,
		Captioner: deps.captioner,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, deps
}

func mustUser(t *testing.T, a *App, email string) domain.User {
	t.Helper()
	u, err := a.Register(email, "longenough")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func mustSession(t *testing.T, a *App, user domain.User, name string) domain.Session {
	t.Helper()
	s, err := a.CreateSession(user, name)
	if err != nil {
		t.Fatalf("create session %s: %v", name, err)
	}
	return s
}
