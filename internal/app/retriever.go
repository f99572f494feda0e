package app

import (
	"context"

	"docuchat/pkg/domain"
	"docuchat/pkg/vector"
)

// retrieve embeds the query and searches the vector store scoped to the
// caller's session. The tenant filter is structural: it is built from the
// authenticated user and the owned session, never from request fields.
// Result order is the store's nearest-neighbor order, consistent within
// one query only.
func (a *App) retrieve(ctx context.Context, user domain.User, session domain.Session, query string) ([]vector.Record, error) {
	embedding, err := a.embedder.EmbedText(ctx, query, taskTypeQuery)
	if err != nil {
		return nil, upstream("embed query", err)
	}
	records, err := a.vectors.Query(ctx, embedding, vector.Filter{
		UserID:    user.ID,
		SessionID: session.ID,
	}, a.topK)
	if err != nil {
		return nil, upstream("vector search", err)
	}
	return records, nil
}
