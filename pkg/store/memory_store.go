package store

import (
	"errors"
	"sort"
	"sync"

	"docuchat/pkg/domain"
)

// MemoryStore is an in-process Store used in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	sessions  map[string]domain.Session
	documents map[string]domain.Document
	messages  []domain.Message
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		sessions:  make(map[string]domain.Session),
		documents: make(map[string]domain.Document),
	}
}

func (s *MemoryStore) CreateUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return errors.New("email already exists")
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) CreateSession(sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) GetSession(id string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok, nil
}

func (s *MemoryStore) ListSessionsByUser(userID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			items = append(items, sess)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) CreateDocument(d domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
	return nil
}

func (s *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	return d, ok, nil
}

func (s *MemoryStore) ListDocumentsBySession(sessionID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Document
	for _, d := range s.documents {
		if d.SessionID == sessionID {
			items = append(items, d)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UploadedAt.After(items[j].UploadedAt)
	})
	return items, nil
}

func (s *MemoryStore) AppendMessage(m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *MemoryStore) ListSessionMessages(sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			items = append(items, m)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) ListRecentMessages(sessionID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []domain.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			items = append(items, m)
		}
	}
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}
