// Package store holds the runtime state of every open conversation.
//
// The Store is a table keyed by conversation id. Each entry owns its observable
// ConversationState together with the throttle buffers and timers used to
// coalesce streamed chunks, so tearing one conversation down never touches
// another. Unknown ids are provisioned on first use: there is no "conversation
// not found" error.
//
// All mutations go through Store methods and are serialized by a single mutex,
// which makes each one atomic with respect to the others. Readers get deep
// copies and learn about changes through Subscribe.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFlushDelay bounds how often streamed chunks become visible
const DefaultFlushDelay = 50 * time.Millisecond

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Tests replace it to control time.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the timer source
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithFlushDelay sets the chunk coalescing window
func WithFlushDelay(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.flushDelay = d
		}
	}
}

// WithMaxMessages sets how many persisted messages are kept per conversation
func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store is the conversation-keyed state table
type Store struct {
	mu            sync.Mutex
	conversations map[string]*conversation

	backend     Backend
	clock       Clock
	flushDelay  time.Duration
	maxMessages int
	log         zerolog.Logger

	throttles map[channel]*throttle

	// global, not per conversation
	sending   map[string]bool
	lastError string

	subscribers map[int]chan string
	nextSubID   int
}

// conversation is one arena slot: the observable state plus its private runtime
type conversation struct {
	id       string
	state    ConversationState
	buffers  map[channel]*chunkBuffer
	stopping bool // stop requested; chunk events are dropped until the turn settles
	removed  bool
}

// New creates a Store. backend may be nil when only the mutators are used.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*conversation),
		backend:       backend,
		clock:         realClock{},
		flushDelay:    DefaultFlushDelay,
		maxMessages:   DefaultMaxMessages,
		log:           zerolog.Nop(),
		sending:       make(map[string]bool),
		subscribers:   make(map[int]chan string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.throttles = newThrottles(s.flushDelay, s.clock)
	return s
}

// conv returns the entry for id, creating it if needed. Caller holds s.mu.
func (s *Store) conv(id string) *conversation {
	if c, ok := s.conversations[id]; ok {
		return c
	}
	c := &conversation{
		id:      id,
		state:   newConversationState(),
		buffers: make(map[channel]*chunkBuffer),
	}
	s.conversations[id] = c
	return c
}

// mutate runs fn on the entry for id under the lock and notifies subscribers
func (s *Store) mutate(id string, fn func(c *conversation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.conv(id))
	s.notify(id)
}

// GetConversationState returns a copy of the state for id, provisioning a
// default state if the id has not been seen yet.
func (s *Store) GetConversationState(id string) ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(id).state.clone()
}

// Phase returns the turn phase of a conversation
func (s *Store) Phase(id string) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv(id).state.Phase()
}

// ConversationIDs lists the ids currently held, sorted
func (s *Store) ConversationIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveConversationState cancels every pending timer of id and deletes its
// record. A later GetConversationState(id) returns a fresh default state.
func (s *Store) RemoveConversationState(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return
	}
	s.cleanupThrottleLocked(c)
	c.removed = true
	delete(s.conversations, id)
	delete(s.sending, id)
	s.log.Debug().Str("conversation", id).Msg("conversation state removed")
	s.notify(id)
}

// Subscribe returns a channel receiving the id of each conversation that
// changed, and a function that ends the subscription. Notifications are
// dropped while the channel is full; readers re-read state on wake-up.
func (s *Store) Subscribe() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, 64)
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// notify fans a change out to subscribers. Caller holds s.mu.
func (s *Store) notify(id string) {
	for _, ch := range s.subscribers {
		select {
		case ch <- id:
		default:
		}
	}
}
