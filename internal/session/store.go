// Package session persists conversation history as JSONL event logs
// under the pilot data directory.
package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pilotcli/pilot/internal/llm"
)

// Event types stored in session JSONL files.
const (
	// EventMeta records session metadata on the first line.
	EventMeta = "meta"
	// EventMessage records one conversation message.
	EventMessage = "message"
)

// Meta describes a session at creation time.
type Meta struct {
	// SessionID is the session uuid.
	SessionID string `json:"session_id"`
	// ProjectID identifies the workspace the session ran in.
	ProjectID string `json:"project_id,omitempty"`
	// WorkingDir is the workspace root at session start.
	WorkingDir string `json:"working_dir,omitempty"`
	// Model is the model the session started with.
	Model string `json:"model,omitempty"`
	// StartedAt is the session creation time.
	StartedAt time.Time `json:"started_at"`
}

// Event is one JSONL line in a session log.
type Event struct {
	// Type discriminates the event payload.
	Type string `json:"type"`
	// Time is when the event was recorded.
	Time time.Time `json:"time"`
	// Meta is set for meta events.
	Meta *Meta `json:"meta,omitempty"`
	// Message is set for message events.
	Message *llm.Message `json:"message,omitempty"`
}

// Info summarizes a stored session for listings.
type Info struct {
	// ID is the session uuid.
	ID string
	// UpdatedAt is the log file's last modification time.
	UpdatedAt time.Time
	// Size is the log file size in bytes.
	Size int64
}

// Store manages session persistence under a base directory.
type Store struct {
	// BaseDir is the root for all persisted data, typically ~/.pilot.
	BaseDir string
}

// NewStore constructs a Store rooted at the given data directory.
func NewStore(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Path returns the JSONL path for a session.
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.BaseDir, "sessions", sessionID+".jsonl")
}

// Exists reports whether a session log is present.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.Path(sessionID))
	return err == nil
}

// AppendMeta records session metadata.
func (s *Store) AppendMeta(meta Meta) error {
	return s.appendEvent(meta.SessionID, Event{
		Type: EventMeta,
		Time: time.Now().UTC(),
		Meta: &meta,
	})
}

// AppendMessage records one conversation message.
func (s *Store) AppendMessage(sessionID string, message llm.Message) error {
	return s.appendEvent(sessionID, Event{
		Type:    EventMessage,
		Time:    time.Now().UTC(),
		Message: &message,
	})
}

// appendEvent writes a JSONL event to the session log.
func (s *Store) appendEvent(sessionID string, event Event) error {
	if sessionID == "" {
		return errors.New("session id required")
	}
	path := s.Path(sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write session event: %w", err)
	}
	return nil
}

// LoadEvents reads all events from a session log in order. Malformed
// lines are skipped so replay survives partial writes.
func (s *Store) LoadEvents(sessionID string) ([]Event, error) {
	file, err := os.Open(s.Path(sessionID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	// Large tool outputs produce long lines; raise the scanner cap.
	const maxEventSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return events, nil
}

// LoadMessages returns the conversation messages of a session in order.
func (s *Store) LoadMessages(sessionID string) ([]llm.Message, error) {
	events, err := s.LoadEvents(sessionID)
	if err != nil {
		return nil, err
	}
	messages := make([]llm.Message, 0, len(events))
	for _, event := range events {
		if event.Type != EventMessage || event.Message == nil {
			continue
		}
		messages = append(messages, *event.Message)
	}
	return messages, nil
}

// LoadMeta returns the meta event of a session, if recorded.
func (s *Store) LoadMeta(sessionID string) (*Meta, error) {
	events, err := s.LoadEvents(sessionID)
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		if event.Type == EventMeta && event.Meta != nil {
			return event.Meta, nil
		}
	}
	return nil, nil
}

// SaveLastSession stores the most recent session id for a project.
func (s *Store) SaveLastSession(projectID string, sessionID string) error {
	path := s.lastSessionPath(projectID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sessionID), 0o600); err != nil {
		return fmt.Errorf("write last session: %w", err)
	}
	return nil
}

// LoadLastSession returns the most recent session id for a project.
// An empty id with nil error means no session has run here yet.
func (s *Store) LoadLastSession(projectID string) (string, error) {
	raw, err := os.ReadFile(s.lastSessionPath(projectID))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Store) lastSessionPath(projectID string) string {
	return filepath.Join(s.BaseDir, "projects", projectID, "last_session")
}

// List returns stored sessions sorted by modification time, newest
// first. A non-positive limit returns everything.
func (s *Store) List(limit int) ([]Info, error) {
	dir := filepath.Join(s.BaseDir, "sessions")
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var list []Info
	for _, item := range entries {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".jsonl") {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		list = append(list, Info{
			ID:        strings.TrimSuffix(item.Name(), ".jsonl"),
			UpdatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a session log. Deleting a missing session is not an
// error.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// GC removes session logs whose last modification is older than the
// given age and returns the removed session ids. Sessions for which skip
// returns true are left in place; a nil skip collects everything past the
// cutoff.
func (s *Store) GC(olderThan time.Duration, skip func(sessionID string) bool) ([]string, error) {
	sessions, err := s.List(0)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-olderThan)

	var removed []string
	for _, info := range sessions {
		if info.UpdatedAt.After(cutoff) {
			continue
		}
		if skip != nil && skip(info.ID) {
			continue
		}
		if err := s.Delete(info.ID); err != nil {
			return removed, err
		}
		removed = append(removed, info.ID)
	}
	return removed, nil
}
