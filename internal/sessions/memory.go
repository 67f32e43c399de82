package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// maxMessagesPerSession bounds per-session transcript growth in memory;
// older messages are trimmed once the limit is exceeded.
const maxMessagesPerSession = 1000

// MemoryStore is an in-memory Store implementation for tests and local
// runs. It is not durable: process restart loses all sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
	}
}

func (m *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneSession(session)
	now := time.Now().UTC()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.sessions[clone.Key] = clone
	*session = *clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) Update(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[session.Key]
	if !ok {
		return ErrNotFound
	}
	clone := cloneSession(session)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now().UTC()
	m.sessions[clone.Key] = clone
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, key)
	delete(m.messages, key)
	return nil
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, key, agentID, channel, peerID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return cloneSession(s), nil
	}
	now := time.Now().UTC()
	s := &models.Session{
		Key:       key,
		AgentID:   agentID,
		Channel:   channel,
		PeerID:    peerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[key] = s
	return cloneSession(s), nil
}

func (m *MemoryStore) List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Session
	for _, s := range m.sessions {
		if agentID != "" && s.AgentID != agentID {
			continue
		}
		if opts.Channel != "" && s.Channel != opts.Channel {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, key string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return ErrNotFound
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	m.messages[key] = append(m.messages[key], msg)
	if len(m.messages[key]) > maxMessagesPerSession {
		excess := len(m.messages[key]) - maxMessagesPerSession
		m.messages[key] = m.messages[key][excess:]
	}
	m.sessions[key].UpdatedAt = msg.Timestamp
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, key string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all, ok := m.messages[key]
	if !ok {
		if _, sessionExists := m.sessions[key]; !sessionExists {
			return nil, ErrNotFound
		}
		return []models.Message{}, nil
	}
	if limit <= 0 || limit >= len(all) {
		out := make([]models.Message, len(all))
		copy(out, all)
		return out, nil
	}
	start := len(all) - limit
	out := make([]models.Message, limit)
	copy(out, all[start:])
	return out, nil
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	if s.Metadata != nil {
		clone.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
