package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docuchat/pkg/domain"
	"docuchat/pkg/vector"
)

const chatSystemPrompt = "You are a helpful assistant that answers questions using only the provided document context. " +
	"Ground every statement in the context and cite the sources you used. " +
	"If the context does not contain the answer, say so instead of guessing. " +
	"Politely redirect questions unrelated to the uploaded documents."

const emptyContextNote = "No relevant information found in the uploaded documents."

// Ask answers a question against the session's documents. The user turn and
// the assistant turn are persisted, in that order, only after generation
// succeeds; a failed generation leaves the conversation log untouched so a
// client retry cannot duplicate the question.
func (a *App) Ask(ctx context.Context, user domain.User, sessionID, message string) (domain.Answer, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Answer{}, ErrMessageRequired
	}
	session, err := a.ownedSession(user, sessionID)
	if err != nil {
		return domain.Answer{}, err
	}

	records, err := a.retrieve(ctx, user, session, message)
	if err != nil {
		return domain.Answer{}, err
	}

	var history []domain.Message
	if a.historyLimit > 0 {
		history, err = a.store.ListRecentMessages(session.ID, a.historyLimit)
		if err != nil {
			return domain.Answer{}, fmt.Errorf("load history: %w", err)
		}
	}

	contextText := buildContext(records)
	userPrompt := buildPrompt(contextText, history, message)
	reply, err := a.generator.GenerateText(ctx, chatSystemPrompt, userPrompt, a.replyMaxTokens)
	if err != nil {
		return domain.Answer{}, upstream("generate reply", err)
	}

	now := time.Now().UTC()
	if err := a.store.AppendMessage(domain.Message{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	}); err != nil {
		return domain.Answer{}, fmt.Errorf("save user message: %w", err)
	}
	if err := a.store.AppendMessage(domain.Message{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   reply,
		CreatedAt: now.Add(time.Millisecond),
	}); err != nil {
		return domain.Answer{}, fmt.Errorf("save assistant message: %w", err)
	}

	return domain.Answer{
		SessionID: session.ID,
		Reply:     reply,
		Sources:   collectSources(records),
		CreatedAt: now,
	}, nil
}

// History returns the session's messages in chronological order.
func (a *App) History(user domain.User, sessionID string, limit int) ([]domain.Message, error) {
	session, err := a.ownedSession(user, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	msgs, err := a.store.ListSessionMessages(session.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// buildContext renders retrieved chunks as a numbered list, each entry
// followed by its citation line.
func buildContext(records []vector.Record) string {
	if len(records) == 0 {
		return emptyContextNote
	}
	var sb strings.Builder
	for i, rec := range records {
		fmt.Fprintf(&sb, "%d. %s\n[Source: %s, Page %d, %s]\n\n",
			i+1, rec.Content, rec.Metadata.FileName, rec.Metadata.Page, rec.Metadata.Source)
	}
	return strings.TrimSpace(sb.String())
}

func buildPrompt(contextText string, history []domain.Message, question string) string {
	var sb strings.Builder
	sb.WriteString("Context from the uploaded documents:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\n")
	if historyText := buildHistory(history); historyText != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(historyText)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

func buildHistory(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(string(msg.Role)))
		if role == "" {
			role = "message"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// collectSources deduplicates citations by (document, page, source) while
// keeping retrieval order.
func collectSources(records []vector.Record) []domain.Source {
	seen := make(map[string]struct{}, len(records))
	sources := make([]domain.Source, 0, len(records))
	for _, rec := range records {
		key := fmt.Sprintf("%s_%d_%s", rec.Metadata.DocumentID, rec.Metadata.Page, rec.Metadata.Source)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sources = append(sources, domain.Source{
			DocumentID: rec.Metadata.DocumentID,
			FileName:   rec.Metadata.FileName,
			Page:       rec.Metadata.Page,
			Source:     domain.SourceType(rec.Metadata.Source),
		})
	}
	return sources
}
