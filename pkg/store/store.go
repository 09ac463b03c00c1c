// Package store provides in-memory storage for evaluation sessions.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lemonberrylabs/tcalc/pkg/runtime"
)

var (
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a session with a taken ID.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidID is returned for malformed session IDs.
	ErrInvalidID = errors.New("invalid session id")
)

// MaxHistory is the number of evaluations kept per session.
const MaxHistory = 100

// Mode is the parse mode of an evaluation.
type Mode string

const (
	ModeExpression Mode = "EXPRESSION"
	ModeProgram    Mode = "PROGRAM"
)

// Entry records one evaluation in a session's history.
type Entry struct {
	Mode    Mode      `json:"mode"`
	Source  string    `json:"source"`
	Results []float64 `json:"results,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Session is a named Evaluator whose variables and functions persist across
// requests. All evaluation goes through the session mutex.
type Session struct {
	ID          string
	Name        string
	Description string
	CreateTime  time.Time

	mu          sync.Mutex
	ev          *runtime.Evaluator
	updateTime  time.Time
	evaluations int64
	history     []Entry
}

// Info is a point-in-time copy of a session's state.
type Info struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	CreateTime  time.Time          `json:"createTime"`
	UpdateTime  time.Time          `json:"updateTime"`
	Evaluations int64              `json:"evaluations"`
	Variables   map[string]float64 `json:"variables"`
	Functions   map[string]string  `json:"functions"`
	History     []Entry            `json:"history,omitempty"`
}

// Evaluate evaluates src as a single expression in the session.
func (s *Session) Evaluate(src string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.ev.Evaluate(src)
	if err != nil {
		s.recordLocked(ModeExpression, src, nil, err)
		return 0, err
	}
	s.recordLocked(ModeExpression, src, []float64{v}, nil)
	return v, nil
}

// EvaluateProgram evaluates src as a program in the session.
func (s *Session) EvaluateProgram(src string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, err := s.ev.EvaluateProgram(src)
	s.recordLocked(ModeProgram, src, vs, err)
	return vs, err
}

// Reset clears the session's variables and functions. History is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ev.Reset()
	s.updateTime = time.Now()
}

func (s *Session) recordLocked(mode Mode, src string, results []float64, err error) {
	now := time.Now()
	s.evaluations++
	s.updateTime = now

	e := Entry{Mode: mode, Source: src, Results: results, Time: now}
	if err != nil {
		e.Error = err.Error()
	}
	s.history = append(s.history, e)
	if len(s.history) > MaxHistory {
		s.history = s.history[len(s.history)-MaxHistory:]
	}
}

// Info returns a snapshot of the session. User functions are rendered as
// source; built-ins are omitted.
func (s *Session) Info(withHistory bool) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		CreateTime:  s.CreateTime,
		UpdateTime:  s.updateTime,
		Evaluations: s.evaluations,
		Variables:   s.ev.Variables(),
		Functions:   make(map[string]string),
	}
	for _, name := range s.ev.UserFunctions() {
		desc, _ := s.ev.Describe(name)
		info.Functions[name] = desc
	}
	if withHistory {
		info.History = append([]Entry(nil), s.history...)
	}
	return info
}

// Store is a thread-safe in-memory storage for sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     []runtime.Option

	// Counter for generating unique IDs
	counter int64
}

// New creates a new empty store. opts configure every session's Evaluator.
func New(opts ...runtime.Option) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// CreateSession creates a new session. An empty id generates one.
func (s *Store) CreateSession(id, description string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		for {
			s.counter++
			id = fmt.Sprintf("s-%d", s.counter)
			if _, exists := s.sessions[id]; !exists {
				break
			}
		}
	} else if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("session '%s' %w", id, ErrAlreadyExists)
	}

	now := time.Now()
	sess := &Session{
		ID:          id,
		Name:        "sessions/" + id,
		Description: description,
		CreateTime:  now,
		ev:          runtime.NewEvaluator(s.opts...),
		updateTime:  now,
	}
	s.sessions[id] = sess
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session '%s' %w", id, ErrNotFound)
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *Store) ListSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreateTime.Equal(result[j].CreateTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreateTime.Before(result[j].CreateTime)
	})
	return result
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session '%s' %w", id, ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

// Evaluate runs src once in a throwaway Evaluator configured like the
// sessions.
func (s *Store) Evaluate(mode Mode, src string) ([]float64, error) {
	ev := runtime.NewEvaluator(s.opts...)
	if mode == ModeProgram {
		return ev.EvaluateProgram(src)
	}
	v, err := ev.Evaluate(src)
	if err != nil {
		return nil, err
	}
	return []float64{v}, nil
}

// validID accepts lowercase letters, digits, '-' and '_', starting with a
// letter, up to 63 characters.
func validID(id string) bool {
	if len(id) == 0 || len(id) > 63 {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z':
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '-' || ch == '_'):
		default:
			return false
		}
	}
	return true
}
