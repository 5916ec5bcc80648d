package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context is the viewing position remembered between runs.
type Context struct {
	// StudyUID is the study that was active.
	StudyUID string `yaml:"study,omitempty"`
	// ProtocolID is the hanging protocol that was active.
	ProtocolID string `yaml:"protocol,omitempty"`
	// StageIndex is the active stage of ProtocolID.
	StageIndex *int `yaml:"stage_index,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no context is set.
func (c *Context) IsEmpty() bool {
	return c.StudyUID == "" && c.ProtocolID == ""
}

// HasProtocol returns true if a protocol is set.
func (c *Context) HasProtocol() bool {
	return c.ProtocolID != ""
}

// Clear removes all context.
func (c *Context) Clear() {
	c.StudyUID = ""
	c.ProtocolID = ""
	c.StageIndex = nil
	c.UpdatedAt = time.Now()
}

// SetStudy sets the study context. The protocol is kept since protocols apply across studies.
func (c *Context) SetStudy(uid string) {
	c.StudyUID = uid
	c.UpdatedAt = time.Now()
}

// SetProtocol records the active protocol and stage.
func (c *Context) SetProtocol(id string, stageIndex int) {
	c.ProtocolID = id
	idx := stageIndex
	c.StageIndex = &idx
	c.UpdatedAt = time.Now()
}

// String returns a human-readable representation of the context.
func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no context set)"
	}
	result := ""
	if c.StudyUID != "" {
		result = fmt.Sprintf("study:%s", shortUID(c.StudyUID))
	}
	if c.HasProtocol() {
		part := fmt.Sprintf("protocol:%s", c.ProtocolID)
		if c.StageIndex != nil {
			part += fmt.Sprintf("#%d", *c.StageIndex)
		}
		if result != "" {
			result += " "
		}
		result += part
	}
	return result
}

// shortUID keeps the tail of a dotted UID, which is the distinguishing part.
func shortUID(uid string) string {
	if len(uid) > 12 {
		return "…" + uid[len(uid)-12:]
	}
	return uid
}

// ContextStore manages loading and saving context.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a new context store.
// If path is empty, uses the default path (~/.config/hangview/context.yaml).
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "hangview", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk.
// Returns an empty context if the file doesn't exist.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}

	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}

	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
