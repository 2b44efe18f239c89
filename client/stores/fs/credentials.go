// Package fs keeps lmsauth client credentials in a JSON file, one entry per
// server.
package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/panyam/lmsauth/client"
)

// DefaultAppName names the config directory used when no path is given.
const DefaultAppName = "lmsauth"

const credentialsFileName = "credentials.json"

// FSCredentialStore is a client.CredentialStore backed by a single file.
// Changes stay in memory until Save.
type FSCredentialStore struct {
	path string

	mu    sync.RWMutex
	creds map[string]*client.ServerCredential
	dirty bool
}

type credentialFile struct {
	Servers map[string]*client.ServerCredential `json:"servers"`
}

// NewFSCredentialStore opens the file at path, or at
// <user config dir>/<appName>/credentials.json when path is empty. A missing
// file is an empty store; a corrupt one is an error.
func NewFSCredentialStore(path, appName string) (*FSCredentialStore, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		if appName == "" {
			appName = DefaultAppName
		}
		path = filepath.Join(dir, appName, credentialsFileName)
	}

	s := &FSCredentialStore{path: path, creds: map[string]*client.ServerCredential{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}
	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("corrupt credentials file %s: %w", path, err)
	}
	if file.Servers != nil {
		s.creds = file.Servers
	}
	return s, nil
}

func configDir() (string, error) {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(home, ".config"), nil
}

// originOf keys credentials by scheme://host; paths never matter.
func originOf(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

func (s *FSCredentialStore) GetCredential(serverURL string) (*client.ServerCredential, error) {
	origin, err := originOf(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds[origin], nil
}

func (s *FSCredentialStore) SetCredential(serverURL string, cred *client.ServerCredential) error {
	origin, err := originOf(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.creds[origin] = cred
	s.dirty = true
	s.mu.Unlock()
	return nil
}

func (s *FSCredentialStore) RemoveCredential(serverURL string) error {
	origin, err := originOf(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[origin]; ok {
		delete(s.creds, origin)
		s.dirty = true
	}
	return nil
}

// ListServers returns the stored origins in sorted order.
func (s *FSCredentialStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.creds)), nil
}

// Prune drops credentials that are expired and cannot be refreshed and
// reports how many went. Call Save to persist.
func (s *FSCredentialStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.creds)
	maps.DeleteFunc(s.creds, func(_ string, c *client.ServerCredential) bool {
		return c == nil || (c.IsExpired() && !c.HasRefreshToken())
	})
	n := before - len(s.creds)
	if n > 0 {
		s.dirty = true
	}
	return n
}

// Save replaces the file atomically, owner read/write only. It is a no-op
// when nothing changed since the last Save.
func (s *FSCredentialStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(credentialFile{Servers: s.creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := replaceFile(s.path, data); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FSCredentialStore) Path() string {
	return s.path
}

// replaceFile writes data next to path and renames it into place.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
