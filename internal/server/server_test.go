package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"docuchat/internal/app"
	"docuchat/pkg/auth"
	"docuchat/pkg/store"
	"docuchat/pkg/vector"
)

// stub collaborators so the HTTP layer can be tested without postgres,
// minio, or a model provider.

type stubVectors struct{}

func (stubVectors) Upsert(context.Context, []vector.Record) error { return nil }
func (stubVectors) Query(context.Context, []float32, vector.Filter, int) ([]vector.Record, error) {
	return nil, nil
}
func (stubVectors) DeleteByDocument(context.Context, vector.Filter, string) error { return nil }

type stubObjects struct{}

func (stubObjects) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (stubObjects) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, io.ErrUnexpectedEOF
}
func (stubObjects) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "https://objects.local/stub", nil
}
func (stubObjects) Delete(context.Context, string) error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) EmbedText(context.Context, string, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateText(context.Context, string, string, int) (string, error) {
	return "stub reply", nil
}

type stubCaptioner struct{}

func (stubCaptioner) CaptionImage(context.Context, []byte, string, string, int) (string, error) {
	return "stub caption", nil
}

type serverOptions struct {
	authLimit int
}

func newTestServer(t *testing.T, opts serverOptions) (*Server, *auth.TokenIssuer, *app.App) {
	t.Helper()
	appCore, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Vectors:   stubVectors{},
		Objects:   stubObjects{},
		Embedder:  stubEmbedder{},
		Generator: stubGenerator{},
		Captioner: stubCaptioner{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour, auth.TokenOptions{})
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}
	redis := miniredis.RunT(t)
	srv, err := New(Config{
		App:                    appCore,
		Tokens:                 tokens,
		RedisAddr:              redis.Addr(),
		AuthRateLimitPerMinute: opts.authLimit,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, tokens, appCore
}

// newMultipart writes a sessionId+file form into buf and returns the
// content type.
func newMultipart(t *testing.T, buf *bytes.Buffer, sessionID, fileName string, data []byte) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	if err := w.WriteField("sessionId", sessionID); err != nil {
		t.Fatalf("write sessionId field: %v", err)
	}
	fw, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write file data: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return w.FormDataContentType()
}
