package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/homeconnect/pkg/homeconnect"
)

// authStore persists authorization records as YAML so the CLI does not need
// a fresh device-flow authorization on every run. Tokens are credentials, so
// the file is written owner-only.
type authStore struct {
	path string
}

func newAuthStore(path string) *authStore {
	return &authStore{path: path}
}

// Load returns the saved records, or an empty map when the file does not
// exist yet.
func (s *authStore) Load() (map[string]homeconnect.AuthState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]homeconnect.AuthState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth cache: %w", err)
	}

	var auth map[string]homeconnect.AuthState
	if err := yaml.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("parse auth cache %s: %w", s.path, err)
	}
	if auth == nil {
		auth = map[string]homeconnect.AuthState{}
	}
	return auth, nil
}

// Save atomically replaces the cache file.
func (s *authStore) Save(auth map[string]homeconnect.AuthState) error {
	data, err := yaml.Marshal(auth)
	if err != nil {
		return fmt.Errorf("encode auth cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create auth cache dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write auth cache: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace auth cache: %w", err)
	}
	return nil
}
