package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IndexVersion is the current version of the session index format.
const IndexVersion = 1

// Session describes one recording session.
type Session struct {
	// ID is a UUID assigned at session start.
	ID string `json:"id"`

	// Description is a free-form label, e.g. "track day, morning stint".
	Description string `json:"description,omitempty"`

	// Channel is the bus channel the session recorded.
	Channel string `json:"channel,omitempty"`

	// CapturePath is the capture file of the session, relative to the
	// index directory.
	CapturePath string `json:"capture_path"`

	// StartedAt and EndedAt bound the recording. EndedAt is zero while
	// the session is live.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	// FrameCount is the number of frames recorded, filled on close.
	FrameCount uint64 `json:"frame_count,omitempty"`
}

// NewSession creates a session starting now. The capture path is derived
// from the start time and session ID.
func NewSession(description, channel string) Session {
	id := uuid.NewString()
	started := time.Now()
	return Session{
		ID:          id,
		Description: description,
		Channel:     channel,
		CapturePath: fmt.Sprintf("%s-%s.ctlog", started.Format("20060102-150405"), id[:8]),
		StartedAt:   started,
	}
}

// Close marks the session as ended now with its final frame count.
func (s *Session) Close(frameCount uint64) {
	s.EndedAt = time.Now()
	s.FrameCount = frameCount
}

// sessionIndex is the on-disk index format.
type sessionIndex struct {
	Version  int       `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	Sessions []Session `json:"sessions,omitempty"`
}

// SessionStore manages the JSON session index of a capture directory.
type SessionStore struct {
	mu  sync.Mutex
	dir string
}

// NewSessionStore creates a store rooted at dir. The directory is
// created on first save.
func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

// Dir returns the capture directory.
func (s *SessionStore) Dir() string {
	return s.dir
}

// CaptureFile returns the absolute path of a session's capture file.
func (s *SessionStore) CaptureFile(sess Session) string {
	return filepath.Join(s.dir, sess.CapturePath)
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.dir, "sessions.json")
}

// Add records a new session in the index.
func (s *SessionStore) Add(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return err
	}
	idx.Sessions = append(idx.Sessions, sess)
	return s.save(idx)
}

// Update replaces the stored session with the same ID.
func (s *SessionStore) Update(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return err
	}
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == sess.ID {
			idx.Sessions[i] = sess
			return s.save(idx)
		}
	}
	return fmt.Errorf("session %s not in index", sess.ID)
}

// List returns all recorded sessions, newest first.
func (s *SessionStore) List() ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return nil, err
	}
	sessions := idx.Sessions
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// Get returns a session by ID or unique ID prefix.
func (s *SessionStore) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.load()
	if err != nil {
		return Session{}, err
	}

	var match *Session
	for i := range idx.Sessions {
		if idx.Sessions[i].ID == id {
			return idx.Sessions[i], nil
		}
		if len(id) >= 4 && len(idx.Sessions[i].ID) >= len(id) && idx.Sessions[i].ID[:len(id)] == id {
			if match != nil {
				return Session{}, fmt.Errorf("session prefix %q is ambiguous", id)
			}
			match = &idx.Sessions[i]
		}
	}
	if match == nil {
		return Session{}, fmt.Errorf("session %q not found", id)
	}
	return *match, nil
}

// load reads the index. A missing file is an empty index.
func (s *SessionStore) load() (*sessionIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return &sessionIndex{Version: IndexVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	idx := &sessionIndex{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("corrupt session index: %w", err)
	}
	return idx, nil
}

func (s *SessionStore) save(idx *sessionIndex) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	idx.Version = IndexVersion
	idx.SavedAt = time.Now()

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.indexPath(), data, 0644)
}
