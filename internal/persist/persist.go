// Package persist stores the client session between runs.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// Session is what survives a restart: the bearer token, the cached user and
// the last selected chat.
type Session struct {
	Token       string      `toml:"token"`
	CurrentChat string      `toml:"current_chat"`
	User        *model.User `toml:"user,omitempty"`
}

// File is a TOML session file.
type File struct {
	Path string
}

// Load reads the session. A missing file yields an empty session.
func (f *File) Load() (*Session, error) {
	var s Session
	if _, err := toml.DecodeFile(f.Path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Session{}, nil
		}
		return nil, fmt.Errorf("failed to read session %s: %w", f.Path, err)
	}
	return &s, nil
}

// Save writes the session atomically with owner-only permissions.
func (f *File) Save(s *Session) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".session-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(s); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Update loads the session, applies fn and saves the result.
func (f *File) Update(fn func(*Session)) error {
	s, err := f.Load()
	if err != nil {
		return err
	}
	fn(s)
	return f.Save(s)
}

// Clear removes the session file.
func (f *File) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
