// Package conversation holds the process-wide chat log and the request
// spacing limiter that guards it.
//
// State is safe for concurrent use. Every mutation, including the rate
// limiter's check-then-set, happens under one mutex so two requests can never
// both pass the limiter inside the minimum interval.
package conversation

import (
	"sync"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleInstructor Role = "instructor"
)

// Turn is one message in the conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Defaults for State.
const (
	DefaultMinInterval = 2 * time.Second
	DefaultMaxTurns    = 200
)

// Config tunes a State.
type Config struct {
	// MinInterval is the minimum spacing between accepted requests.
	MinInterval time.Duration

	// MaxTurns caps the retained history; the oldest turns are dropped.
	// Zero or negative means unbounded.
	MaxTurns int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval: DefaultMinInterval,
		MaxTurns:    DefaultMaxTurns,
	}
}

// State is the conversation log plus request/response timestamps.
type State struct {
	cfg Config

	mu           sync.Mutex
	turns        []Turn
	lastRequest  time.Time
	lastResponse time.Time
}

// NewState creates an empty conversation.
func NewState(cfg Config) *State {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &State{cfg: cfg}
}

// Admit applies the rate limit at now. If the previous accepted request was
// less than MinInterval ago the request is rejected with the remaining wait
// and the timestamp is left untouched; otherwise now becomes the last
// request time.
func (s *State) Admit(now time.Time) (retryAfter time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastRequest.IsZero() {
		if elapsed := now.Sub(s.lastRequest); elapsed < s.cfg.MinInterval {
			return s.cfg.MinInterval - elapsed, false
		}
	}
	s.lastRequest = now
	return 0, true
}

// AdmitErr is Admit returning a *RateLimitError on rejection.
func (s *State) AdmitErr(now time.Time) error {
	if wait, ok := s.Admit(now); !ok {
		return &RateLimitError{RetryAfter: wait}
	}
	return nil
}

// AddUser appends a learner message.
func (s *State) AddUser(text string, at time.Time) {
	s.append(Turn{Role: RoleUser, Text: text, At: at})
}

// AddInstructor appends a model reply and records it as the last response.
func (s *State) AddInstructor(text string, at time.Time) {
	s.mu.Lock()
	s.appendLocked(Turn{Role: RoleInstructor, Text: text, At: at})
	s.lastResponse = at
	s.mu.Unlock()
}

func (s *State) append(t Turn) {
	s.mu.Lock()
	s.appendLocked(t)
	s.mu.Unlock()
}

func (s *State) appendLocked(t Turn) {
	s.turns = append(s.turns, t)
	if limit := s.cfg.MaxTurns; limit > 0 && len(s.turns) > limit {
		// Copy so the dropped prefix can be collected.
		trimmed := make([]Turn, limit)
		copy(trimmed, s.turns[len(s.turns)-limit:])
		s.turns = trimmed
	}
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Turns        []Turn
	LastRequest  time.Time
	LastResponse time.Time
}

// Snapshot returns a copy of the turns and timestamps.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return Snapshot{
		Turns:        turns,
		LastRequest:  s.lastRequest,
		LastResponse: s.lastResponse,
	}
}

// Len returns the number of retained turns.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Reset clears the turns and both timestamps, returning the conversation to
// its cold-start state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.lastRequest = time.Time{}
	s.lastResponse = time.Time{}
}
