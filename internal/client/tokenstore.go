package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"kidcheck/internal/roster"
)

// Storage keys, one for the bearer token and one for the serialized staff
// identity. Both are cleared together on logout.
const (
	keyToken = "auth_token"
	keyStaff = "current_staff"
)

// KV is the persistent string-keyed store backing the session. The file
// implementation stands in for what a browser would keep in localStorage.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(keys ...string) error
}

// FileKV persists keys as a single JSON file with atomic writes.
type FileKV struct {
	path string
	data map[string]string
}

// DefaultSessionPath returns the session file under the user config dir.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(dir, "kidcheck", "session.json"), nil
}

// NewFileKV loads (or initializes) the store at path.
func NewFileKV(path string) (*FileKV, error) {
	kv := &FileKV{path: path, data: map[string]string{}}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return kv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session store read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &kv.data); err != nil {
		// Corrupt session files are abandoned rather than crashed on;
		// the user just logs in again.
		backup := path + ".corrupt"
		_ = os.Rename(path, backup)
		kv.data = map[string]string{}
	}
	return kv, nil
}

// Get returns the stored value for key.
func (kv *FileKV) Get(key string) (string, bool) {
	v, ok := kv.data[key]
	return v, ok
}

// Set stores a value and persists.
func (kv *FileKV) Set(key, value string) error {
	kv.data[key] = value
	return kv.save()
}

// Delete removes keys and persists.
func (kv *FileKV) Delete(keys ...string) error {
	for _, key := range keys {
		delete(kv.data, key)
	}
	return kv.save()
}

func (kv *FileKV) save() error {
	if err := os.MkdirAll(filepath.Dir(kv.path), 0o700); err != nil {
		return fmt.Errorf("session store mkdir: %w", err)
	}
	data, err := json.MarshalIndent(kv.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := kv.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("session store write: %w", err)
	}
	if err := os.Rename(tmp, kv.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session store rename: %w", err)
	}
	return nil
}

// TokenStore holds the bearer credential and the authenticated staff
// identity for the lifetime of a client session, surviving restarts.
type TokenStore struct {
	kv KV
}

// NewTokenStore wraps a KV store.
func NewTokenStore(kv KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// Set records the credential and identity issued at login.
func (s *TokenStore) Set(token string, staff roster.Staff) error {
	data, err := json.Marshal(staff)
	if err != nil {
		return err
	}
	if err := s.kv.Set(keyToken, token); err != nil {
		return err
	}
	return s.kv.Set(keyStaff, string(data))
}

// Clear drops both entries, on logout or when the server rejects the
// credential.
func (s *TokenStore) Clear() error {
	return s.kv.Delete(keyToken, keyStaff)
}

// Token returns the current bearer token, if any.
func (s *TokenStore) Token() (string, bool) {
	return s.kv.Get(keyToken)
}

// Staff returns the restored staff identity, if any.
func (s *TokenStore) Staff() (roster.Staff, bool) {
	raw, ok := s.kv.Get(keyStaff)
	if !ok {
		return roster.Staff{}, false
	}
	var staff roster.Staff
	if err := json.Unmarshal([]byte(raw), &staff); err != nil {
		return roster.Staff{}, false
	}
	return staff, true
}
