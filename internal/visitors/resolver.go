// Package visitors resolves the identity attached to every telemetry record
// and derives the anonymous display aliases shown in reports.
//
// A visitor id is long lived and persisted through an IdentityStore; a
// session id lives only as long as the Resolver that generated it, the
// equivalent of one browser tab.
package visitors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Identity is the pair of correlation keys carried by every record.
type Identity struct {
	VisitorID string `json:"visitorId"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether both ids are present. Ingestion rejects records
// whose identity is incomplete.
func (i Identity) Complete() bool {
	return i.VisitorID != "" && i.SessionID != ""
}

// State is what an IdentityStore persists between sessions.
type State struct {
	VisitorID string `json:"visitorId"`
	Mode      string `json:"mode,omitempty"`
}

// IdentityStore loads and saves the persistent part of the identity.
// Load returns a zero State, not an error, when nothing has been saved yet.
type IdentityStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Resolver is the identity context shared by every telemetry emitter. Init
// hydrates it once; afterwards Identity and Mode only read memory.
type Resolver struct {
	store IdentityStore
	newID func() string

	initOnce sync.Once
	initErr  error

	mu        sync.RWMutex
	visitorID string
	sessionID string
	mode      string
}

// NewResolver returns a resolver backed by store. Nothing is loaded until Init.
func NewResolver(store IdentityStore) *Resolver {
	return &Resolver{store: store, newID: uuid.NewString}
}

// Init loads the persisted state, creating and saving a visitor id when none
// exists, and starts a new session. Only the first call does any work.
//
// A storage failure still leaves the resolver with usable in-memory ids; the
// error is returned so the caller can log that they will not persist.
func (r *Resolver) Init(ctx context.Context) error {
	r.initOnce.Do(func() {
		state, loadErr := r.store.Load(ctx)

		r.mu.Lock()
		r.sessionID = r.newID()
		r.visitorID = state.VisitorID
		r.mode = state.Mode
		created := r.visitorID == ""
		if created {
			r.visitorID = r.newID()
		}
		state = State{VisitorID: r.visitorID, Mode: r.mode}
		r.mu.Unlock()

		if loadErr != nil {
			r.initErr = fmt.Errorf("load identity: %w", loadErr)
			return
		}
		if created {
			if err := r.store.Save(ctx, state); err != nil {
				r.initErr = fmt.Errorf("save identity: %w", err)
			}
		}
	})
	return r.initErr
}

// Identity returns the current ids without doing any I/O. Before Init both
// ids are empty.
func (r *Resolver) Identity() Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Identity{VisitorID: r.visitorID, SessionID: r.sessionID}
}

// Mode returns the persisted audience mode preference, if any.
func (r *Resolver) Mode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetMode updates the mode preference in memory and in the store.
func (r *Resolver) SetMode(ctx context.Context, mode string) error {
	r.mu.Lock()
	r.mode = mode
	state := State{VisitorID: r.visitorID, Mode: mode}
	r.mu.Unlock()

	if err := r.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save mode: %w", err)
	}
	return nil
}

// MemoryStore keeps the state in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{state: initial}
}

func (s *MemoryStore) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// FileStore persists the state as a small JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return state, nil
}

func (s *FileStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
