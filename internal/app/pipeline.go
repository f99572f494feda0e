package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docuchat/pkg/ai"
	"docuchat/pkg/domain"
	"docuchat/pkg/vector"
)

const captionPrompt = "Describe this image briefly and factually in 2-4 lines. " +
	"Focus on the main visual elements, objects, text, charts, and diagrams visible in the image."

const (
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// candidate is one embedding record before its vector is known.
type candidate struct {
	content string
	source  string
	page    int
}

// ingestDocument turns processor output into persisted embedding records.
// Fail-fast: a single caption or embedding failure fails the whole ingestion
// and nothing of the document becomes visible. Returns the number of records
// indexed.
func (a *App) ingestDocument(ctx context.Context, meta vector.Metadata, texts []pageText, images []pageImage) (int, error) {
	candidates := make([]candidate, 0, len(texts)+len(images))
	for _, pt := range texts {
		for _, part := range chunkText(pt.Content, a.chunkSize, a.chunkOverlap) {
			candidates = append(candidates, candidate{
				content: part,
				source:  string(domain.SourcePDFText),
				page:    pt.Page,
			})
		}
	}

	captions, err := a.captionImages(ctx, images)
	if err != nil {
		return 0, err
	}
	candidates = append(candidates, captions...)

	if len(candidates) == 0 {
		// Zero-page and unreadable-content PDFs are valid uploads that
		// simply index nothing.
		return 0, nil
	}

	texts2 := make([]string, 0, len(candidates))
	for _, c := range candidates {
		texts2 = append(texts2, c.content)
	}
	vectors, err := a.embedTexts(ctx, texts2, taskTypeDocument)
	if err != nil {
		return 0, upstream("embed content", err)
	}

	records := make([]vector.Record, 0, len(candidates))
	for i, c := range candidates {
		recMeta := meta
		recMeta.Source = c.source
		recMeta.Page = c.page
		records = append(records, vector.Record{
			ID:        uuid.NewString(),
			Content:   c.content,
			Embedding: vectors[i],
			Metadata:  recMeta,
		})
	}
	if err := a.vectors.Upsert(ctx, records); err != nil {
		return 0, upstream("persist embeddings", err)
	}
	return len(records), nil
}

// captionImages fans out caption calls with bounded concurrency and joins
// before returning. Page order of the results is preserved.
func (a *App) captionImages(ctx context.Context, images []pageImage) ([]candidate, error) {
	if len(images) == 0 {
		return nil, nil
	}
	out := make([]candidate, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.ingestConcurrency)
	for i, img := range images {
		g.Go(func() error {
			caption, err := a.captioner.CaptionImage(gctx, img.Data, img.MimeType, captionPrompt, a.captionMaxTokens)
			if err != nil {
				return upstream(fmt.Sprintf("caption image on page %d", img.Page), err)
			}
			out[i] = candidate{
				content: caption,
				source:  string(domain.SourceImageCaption),
				page:    img.Page,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

const embedBatchSize = 64

// embedTexts prefers the provider's batch endpoint and falls back to
// bounded parallel single-text calls.
func (a *App) embedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if batcher, ok := a.embedder.(ai.BatchEmbedder); ok {
		out := make([][]float32, 0, len(texts))
		for start := 0; start < len(texts); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(texts) {
				end = len(texts)
			}
			vectors, err := batcher.EmbedTexts(ctx, texts[start:end], taskType)
			if err != nil {
				return nil, err
			}
			out = append(out, vectors...)
		}
		return validateVectors(out, len(texts))
	}

	out := make([][]float32, len(texts))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.ingestConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := a.embedder.EmbedText(gctx, text, taskType)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = vec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return validateVectors(out, len(texts))
}

func validateVectors(vectors [][]float32, want int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), want)
	}
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("inconsistent embedding dimensions: %d vs %d", len(vec), len(vectors[0]))
		}
	}
	return vectors, nil
}
