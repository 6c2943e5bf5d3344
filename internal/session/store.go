package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
)

var (
	// ErrNotFound is returned when a store holds no credential.
	ErrNotFound = errors.New("credential not found")

	// ErrReadOnly is returned when writing to a store that cannot be written.
	ErrReadOnly = errors.New("credential store is read-only")
)

// Store persists the session credential between process runs.
type Store interface {
	Load(ctx context.Context) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context) error
}

// keyringService is the service name credentials are filed under in the OS keychain.
const keyringService = "ttclient"

// KeyringStore keeps the credential in the OS keychain/credential manager.
type KeyringStore struct {
	account string
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a keyring store for the given account key, typically the API base URL.
func NewKeyringStore(account string) *KeyringStore {
	return &KeyringStore{account: account}
}

func (s *KeyringStore) Load(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	secret, err := keyring.Get(keyringService, s.account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return decodeCredential([]byte(secret))
}

func (s *KeyringStore) Save(ctx context.Context, cred *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := keyring.Set(keyringService, s.account, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

func (s *KeyringStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Delete(keyringService, s.account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete keyring entry: %w", err)
	}
	return nil
}

// FileStore keeps the credential as JSON in a file readable by the owner only.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	return decodeCredential(data)
}

func (s *FileStore) Save(ctx context.Context, cred *Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	// Write to a sibling file first so a crash never leaves a truncated credential.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}

// StaticStore serves a fixed credential, e.g. one taken from the environment.
// Writes fail with ErrReadOnly.
type StaticStore struct {
	cred *Credential
}

var _ Store = (*StaticStore)(nil)

// NewStaticStore creates a read-only store. An empty token makes Load report ErrNotFound.
func NewStaticStore(token, refreshToken string) *StaticStore {
	if token == "" && refreshToken == "" {
		return &StaticStore{}
	}
	return &StaticStore{cred: &Credential{Token: token, RefreshToken: refreshToken}}
}

func (s *StaticStore) Load(context.Context) (*Credential, error) {
	if s.cred == nil {
		return nil, ErrNotFound
	}
	cred := *s.cred
	return &cred, nil
}

// Save on a static store is a no-op failure: the in-memory session still
// moves on, but nothing outlives the process.
func (s *StaticStore) Save(context.Context, *Credential) error {
	return ErrReadOnly
}

func (s *StaticStore) Delete(context.Context) error {
	return ErrReadOnly
}

// MemoryStore keeps the credential for the lifetime of the process.
type MemoryStore struct {
	mu   sync.Mutex
	cred *Credential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, ErrNotFound
	}
	cred := *s.cred
	return &cred, nil
}

func (s *MemoryStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cred
	s.cred = &c
	return nil
}

func (s *MemoryStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

func decodeCredential(data []byte) (*Credential, error) {
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if cred.Token == "" && cred.RefreshToken == "" {
		return nil, ErrNotFound
	}
	return &cred, nil
}
