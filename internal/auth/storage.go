package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// ErrNoCredentials indicates that no credential pair has been persisted yet
// and the bootstrap flow must be run.
var ErrNoCredentials = errors.New("no stored credentials")

// Storage persists the credential pair across process restarts.
type Storage interface {
	Load() (*Credentials, error)
	Save(*Credentials) error
}

// FileStorage persists credentials as a JSON file, created with 0600
// permissions in a 0700 directory.
type FileStorage struct {
	path string
}

// NewFileStorage creates a file-backed storage at the given path. An empty
// path defaults to ticktick.json under the user cache directory.
func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine cache directory: %w", err)
		}
		path = filepath.Join(cacheDir, "ticktick-mcp", "ticktick.json")
	}
	return &FileStorage{path: path}, nil
}

// Path returns the credential file location.
func (s *FileStorage) Path() string {
	return s.path
}

// Load reads the credential file. A missing file returns ErrNoCredentials.
func (s *FileStorage) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %s: %w", s.path, err)
	}
	return &creds, nil
}

// Save writes the credential file atomically via a temp file rename.
func (s *FileStorage) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// KeyringStorage persists credentials in the operating system keyring.
type KeyringStorage struct {
	service string
	user    string
}

// NewKeyringStorage creates a keyring-backed storage. service and user
// identify the keyring entry; empty values use the defaults.
func NewKeyringStorage(service, user string) *KeyringStorage {
	if service == "" {
		service = "ticktick-mcp"
	}
	if user == "" {
		user = "default"
	}
	return &KeyringStorage{service: service, user: user}
}

// Load reads credentials from the keyring. A missing entry returns
// ErrNoCredentials.
func (s *KeyringStorage) Load() (*Credentials, error) {
	secret, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read keyring entry: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse keyring entry: %w", err)
	}
	return &creds, nil
}

// Save writes credentials to the keyring.
func (s *KeyringStorage) Save(creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := keyring.Set(s.service, s.user, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring entry: %w", err)
	}
	return nil
}
