// Package session keeps per-session conversation history in memory.
package session

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// DefaultMaxMessages bounds one session's history; the oldest entries are dropped first.
const DefaultMaxMessages = 200

var (
	ErrInvalidID      = errors.New("invalid session id")
	ErrInvalidMessage = errors.New("message needs role user or assistant and non-empty content")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// log is one session's history. Each log has its own lock so sessions never contend.
type log struct {
	mu       sync.Mutex
	messages []model.SessionMessage
}

// Store maps session ids to histories.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*log
	maxMessages int
	now         func() time.Time
}

// NewStore creates an empty store. maxMessages <= 0 uses DefaultMaxMessages.
func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{
		sessions:    make(map[string]*log),
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

func (s *Store) get(id string, create bool) (*log, error) {
	if !validID.MatchString(id) {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessions[id]
	if !ok && create {
		l = &log{}
		s.sessions[id] = l
	}
	return l, nil
}

// Append stamps msg with the server time and adds it to session id.
func (s *Store) Append(id string, role model.SessionRole, content string) (model.SessionMessage, error) {
	if (role != model.RoleUser && role != model.RoleAssistant) || content == "" {
		return model.SessionMessage{}, ErrInvalidMessage
	}
	l, err := s.get(id, true)
	if err != nil {
		return model.SessionMessage{}, err
	}
	msg := model.SessionMessage{Role: role, Content: content, Timestamp: s.now().UnixMilli()}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	if over := len(l.messages) - s.maxMessages; over > 0 {
		l.messages = append(l.messages[:0:0], l.messages[over:]...)
	}
	return msg, nil
}

// Messages returns a copy of session id's history, oldest first. Unknown sessions are empty.
func (s *Store) Messages(id string) ([]model.SessionMessage, error) {
	l, err := s.get(id, false)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return []model.SessionMessage{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.SessionMessage, len(l.messages))
	copy(out, l.messages)
	return out, nil
}

// Clear empties session id.
func (s *Store) Clear(id string) error {
	if !validID.MatchString(id) {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
