package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tOgg1/hangview/internal/models"
)

// ErrDuplicateProtocol is returned when two definitions share an id.
var ErrDuplicateProtocol = errors.New("duplicate protocol id")

// IsDefinitionFile reports whether path looks like a protocol definition.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Decode parses one protocol definition and validates it.
func Decode(r io.Reader) (models.Protocol, error) {
	var p models.Protocol
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return models.Protocol{}, fmt.Errorf("parse protocol: %w", err)
	}
	if err := p.Validate(); err != nil {
		return models.Protocol{}, fmt.Errorf("protocol %q: %w", p.ID, err)
	}
	return p, nil
}

// LoadFile reads one definition from disk.
func LoadFile(path string) (models.Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Protocol{}, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := Decode(bytes.NewReader(data))
	if err != nil {
		return models.Protocol{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// LoadDir reads every definition file in dir, sorted by file name. A missing
// directory yields no protocols.
func LoadDir(dir string) ([]models.Protocol, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read protocols dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var out []models.Protocol
	seen := make(map[string]string, len(names))
	for _, name := range names {
		p, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[p.ID]; ok {
			return nil, fmt.Errorf("%w: %q in %s and %s", ErrDuplicateProtocol, p.ID, prev, name)
		}
		seen[p.ID] = name
		out = append(out, p)
	}
	return out, nil
}

// Encode writes p as YAML.
func Encode(w io.Writer, p models.Protocol) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode protocol %q: %w", p.ID, err)
	}
	return enc.Close()
}
