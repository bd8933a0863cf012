// Package session owns the lifecycle of one chat session: the merged invoice
// table, the question-answering agent bound to it, and the message history.
// A session is built once per file-pair submission; uploading a new pair is an
// explicit Create, never implicit caching behind the first upload.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fiscaldata/invoice-agent/internal/agent"
	"github.com/fiscaldata/invoice-agent/internal/merge"
	"github.com/fiscaldata/invoice-agent/internal/table"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session's chat history.
type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session holds one merged table and the agent answering questions about it.
// The table is immutable once created; only the history is mutated, under mu.
type Session struct {
	ID        string
	CreatedAt time.Time
	JoinKey   string
	Table     *table.Table

	answerer agent.Answerer
	preamble string

	mu       sync.Mutex
	messages []Message
}

// Ask relays a question to the agent and records both sides in the history.
// Agent failures are recorded as assistant-side error messages and returned.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{Role: RoleUser, Content: question, At: time.Now()})

	answer, err := s.answerer.Answer(ctx, question, s.preamble)
	if err != nil {
		errMsg := fmt.Sprintf("Ocorreu um erro ao executar a sua pergunta: %v", err)
		s.messages = append(s.messages, Message{Role: RoleAssistant, Content: errMsg, At: time.Now()})
		return "", fmt.Errorf("session.Ask: %w", err)
	}

	s.messages = append(s.messages, Message{Role: RoleAssistant, Content: answer, At: time.Now()})
	return answer, nil
}

// History returns a copy of the chat history.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// AnswererFactory builds the agent for a new session. Injected so the manager
// and its tests never depend on a concrete agent implementation.
type AnswererFactory func(ctx context.Context) (agent.Answerer, error)

// Manager creates and stores sessions in memory, keyed by ID.
// It is safe for concurrent use.
type Manager struct {
	newAnswerer AnswererFactory
	mergeOpts   merge.Options
	language    string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. mergeOpts and language follow the
// service configuration; zero values fall back to package defaults.
func NewManager(newAnswerer AnswererFactory, mergeOpts merge.Options, language string) *Manager {
	return &Manager{
		newAnswerer: newAnswerer,
		mergeOpts:   mergeOpts,
		language:    language,
		sessions:    make(map[string]*Session),
	}
}

// Create merges the two CSV sources and constructs a new session around the
// result. Merge failures (LoadError, NoJoinKeyError) pass through unwrapped so
// callers can distinguish them.
func (m *Manager) Create(ctx context.Context, headerSrc, itemsSrc io.Reader) (*Session, error) {
	result, err := merge.Merge(headerSrc, itemsSrc, m.mergeOpts)
	if err != nil {
		return nil, err
	}

	answerer, err := m.newAnswerer(ctx)
	if err != nil {
		return nil, fmt.Errorf("session.Create: building agent: %w", err)
	}

	preamble, err := agent.BuildPreamble(result.Table, result.JoinKey, m.language)
	if err != nil {
		return nil, fmt.Errorf("session.Create: %w", err)
	}

	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		JoinKey:   result.JoinKey,
		Table:     result.Table,
		answerer:  answerer,
		preamble:  preamble,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	return s, nil
}

// CreateFromBytes is Create over in-memory CSV payloads, the shape the HTTP
// upload handler works with.
func (m *Manager) CreateFromBytes(ctx context.Context, headerCSV, itemsCSV []byte) (*Session, error) {
	return m.Create(ctx, bytes.NewReader(headerCSV), bytes.NewReader(itemsCSV))
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete discards a session and its table.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// List returns all live sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
