package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docuchat/pkg/domain"
	"docuchat/pkg/vector"
)

func seedRecord(deps *testDeps, userID, sessionID, docID, content string, page int) {
	deps.vectors.records = append(deps.vectors.records, vector.Record{
		ID:        docID + "-rec",
		Content:   content,
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata: vector.Metadata{
			UserID:     userID,
			SessionID:  sessionID,
			DocumentID: docID,
			Source:     string(domain.SourcePDFText),
			Page:       page,
			FileName:   "report.pdf",
		},
	})
}

func TestAskGroundsPromptInRetrievedContext(t *testing.T) {
	a, deps := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")
	seedRecord(deps, user.ID, session.ID, "doc-1", "revenue grew 12% in Q3", 4)
	deps.generator.reply = "Revenue grew 12% in Q3."

	answer, err := a.Ask(context.Background(), user, session.ID, "how did revenue do?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Reply != "Revenue grew 12% in Q3." {
		t.Fatalf("reply = %q", answer.Reply)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(answer.Sources))
	}
	src := answer.Sources[0]
	if src.DocumentID != "doc-1" || src.Page != 4 || src.Source != domain.SourcePDFText || src.FileName != "report.pdf" {
		t.Fatalf("source = %+v", src)
	}

	prompt := deps.generator.lastPrompt
	if !strings.Contains(prompt, "revenue grew 12% in Q3") {
		t.Fatalf("prompt missing retrieved chunk: %q", prompt)
	}
	if !strings.Contains(prompt, "[Source: report.pdf, Page 4, pdf_text]") {
		t.Fatalf("prompt missing citation line: %q", prompt)
	}
	if !strings.Contains(prompt, "Question: how did revenue do?") {
		t.Fatalf("prompt missing question: %q", prompt)
	}
	if deps.generator.lastSystem != chatSystemPrompt {
		t.Fatalf("system prompt not applied")
	}
}

func TestAskEmptyRetrievalUsesFallbackNote(t *testing.T) {
	a, deps := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")

	answer, err := a.Ask(context.Background(), user, session.ID, "anything indexed?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(answer.Sources) != 0 {
		t.Fatalf("sources = %d, want 0", len(answer.Sources))
	}
	if !strings.Contains(deps.generator.lastPrompt, emptyContextNote) {
		t.Fatalf("prompt missing empty-context note: %q", deps.generator.lastPrompt)
	}
}

func TestAskDoesNotSeeOtherTenantsRecords(t *testing.T) {
	a, deps := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")
	seedRecord(deps, "someone-else", "other-session", "doc-x", "secret content", 1)

	answer, err := a.Ask(context.Background(), user, session.ID, "what do you know?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(answer.Sources) != 0 {
		t.Fatalf("sources = %d, want 0 for foreign records", len(answer.Sources))
	}
	if strings.Contains(deps.generator.lastPrompt, "secret content") {
		t.Fatalf("prompt leaked another tenant's content")
	}
}

func TestAskPersistsTurnsAfterSuccess(t *testing.T) {
	a, _ := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")

	if _, err := a.Ask(context.Background(), user, session.ID, "first question"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	messages, err := a.History(user, session.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if messages[0].Role != domain.RoleUser || messages[0].Content != "first question" {
		t.Fatalf("first message = %+v, want the user turn", messages[0])
	}
	if messages[1].Role != domain.RoleAssistant {
		t.Fatalf("second message = %+v, want the assistant turn", messages[1])
	}
	if !messages[1].CreatedAt.After(messages[0].CreatedAt) {
		t.Fatalf("assistant turn must sort after the user turn")
	}
}

func TestAskGenerationFailureLeavesHistoryUntouched(t *testing.T) {
	a, deps := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")
	deps.generator.err = errors.New("model unavailable")

	_, err := a.Ask(context.Background(), user, session.ID, "doomed question")
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}

	messages, err := a.History(user, session.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages = %d, want 0 after failed generation", len(messages))
	}
}

func TestAskIncludesRecentHistoryInPrompt(t *testing.T) {
	a, deps := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")

	if _, err := a.Ask(context.Background(), user, session.ID, "earlier question"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if _, err := a.Ask(context.Background(), user, session.ID, "follow-up"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	prompt := deps.generator.lastPrompt
	if !strings.Contains(prompt, "user: earlier question") {
		t.Fatalf("prompt missing prior user turn: %q", prompt)
	}
	if !strings.Contains(prompt, "assistant:") {
		t.Fatalf("prompt missing prior assistant turn: %q", prompt)
	}
}

func TestAskValidation(t *testing.T) {
	a, _ := newTestApp(t)
	user := mustUser(t, a, "u@example.com")
	session := mustSession(t, a, user, "research")

	if _, err := a.Ask(context.Background(), user, session.ID, "   "); !errors.Is(err, ErrMessageRequired) {
		t.Fatalf("err = %v, want ErrMessageRequired", err)
	}
	if _, err := a.Ask(context.Background(), user, "missing-session", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestHistoryForeignSession(t *testing.T) {
	a, _ := newTestApp(t)
	owner := mustUser(t, a, "owner@example.com")
	intruder := mustUser(t, a, "intruder@example.com")
	session := mustSession(t, a, owner, "private")

	if _, err := a.History(intruder, session.ID, 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound for foreign session", err)
	}
}

func TestCollectSourcesDeduplicates(t *testing.T) {
	records := []vector.Record{
		{Metadata: vector.Metadata{DocumentID: "d1", Page: 1, Source: string(domain.SourcePDFText), FileName: "a.pdf"}},
		{Metadata: vector.Metadata{DocumentID: "d1", Page: 1, Source: string(domain.SourcePDFText), FileName: "a.pdf"}},
		{Metadata: vector.Metadata{DocumentID: "d1", Page: 2, Source: string(domain.SourcePDFText), FileName: "a.pdf"}},
		{Metadata: vector.Metadata{DocumentID: "d1", Page: 1, Source: string(domain.SourceImageCaption), FileName: "a.pdf"}},
	}
	sources := collectSources(records)
	if len(sources) != 3 {
		t.Fatalf("sources = %d, want 3 after dedup", len(sources))
	}
}
