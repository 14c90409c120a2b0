// Package vault persists OAuth tokens per identity in a single JSON document,
// encrypting them with AES-256-GCM when a key is configured.
//
// The whole document is loaded at Open and rewritten on every Upsert. Writes
// take an advisory file lock and replace the file by rename, but the document
// held in memory always wins: a second process writing the same file between
// our load and our write loses its changes.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// MinIdentityLength is the shortest identity accepted by Upsert.
const MinIdentityLength = 6

const lockTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("credential not found")

	// ErrMissingKey is returned when a record is encrypted but the vault has no key.
	ErrMissingKey = errors.New("credential is encrypted but no encryption key is configured")

	// ErrInvalidIdentity is returned for identities shorter than MinIdentityLength.
	ErrInvalidIdentity = fmt.Errorf("identity must be at least %d characters", MinIdentityLength)
)

// DecryptError reports a stored credential that exists but cannot be decrypted.
// It may indicate tampering or a wrong key, so it is never reported as ErrNotFound.
type DecryptError struct {
	Identity string
	Err      error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("cannot decrypt credential %q: %v", e.Identity, e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// Record is one entry of the persisted document.
type Record struct {
	CreatedAt       time.Time `json:"createdAt"`
	Login           string    `json:"login,omitempty"`
	TokenCiphertext string    `json:"tokenCiphertext,omitempty"`
	TokenPlain      string    `json:"tokenPlain,omitempty"`
}

// Credential is a resolved token with its optional login.
type Credential struct {
	Token string
	Login string
}

// Entry describes a stored credential without its secret.
type Entry struct {
	Identity  string
	Login     string
	CreatedAt time.Time
	Encrypted bool
}

// Option configures a Vault.
type Option func(*Vault)

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Vault is the credential store.
type Vault struct {
	mu      sync.RWMutex
	path    string
	sealer  *sealer
	records map[string]Record
	now     func() time.Time
	logger  *slog.Logger
}

// Open loads the document at path. A nil key selects plain-text mode,
// which is logged as a warning; a key of the wrong size is an error.
func Open(path string, key []byte, opts ...Option) (*Vault, error) {
	v := &Vault{
		path:    path,
		records: make(map[string]Record),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if key != nil {
		s, err := newSealer(key)
		if err != nil {
			return nil, err
		}
		v.sealer = s
	} else {
		v.logger.Warn("token encryption key is not configured, credentials are stored in plain text", "path", path)
	}

	if err := v.load(); err != nil {
		return nil, err
	}

	return v, nil
}

// Path returns the location of the persisted document.
func (v *Vault) Path() string {
	return v.path
}

// Encrypted reports whether new records are encrypted.
func (v *Vault) Encrypted() bool {
	return v.sealer != nil
}

// Upsert stores token and login for identity, replacing any previous record,
// and rewrites the document.
func (v *Vault) Upsert(identity, token, login string) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}

	rec := Record{
		CreatedAt: v.now().UTC(),
		Login:     login,
	}
	if v.sealer != nil {
		sealed, err := v.sealer.seal(token)
		if err != nil {
			return fmt.Errorf("failed to encrypt credential: %w", err)
		}
		rec.TokenCiphertext = sealed
	} else {
		rec.TokenPlain = token
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	prev, existed := v.records[identity]
	v.records[identity] = rec
	if err := v.persist(); err != nil {
		if existed {
			v.records[identity] = prev
		} else {
			delete(v.records, identity)
		}
		return err
	}

	v.logger.Debug("credential stored", "identity", identity, "encrypted", v.sealer != nil)
	return nil
}

// Resolve returns the credential stored for identity.
// It returns ErrNotFound when there is no record and *DecryptError when a
// ciphertext record cannot be opened.
func (v *Vault) Resolve(identity string) (Credential, error) {
	v.mu.RLock()
	rec, ok := v.records[identity]
	v.mu.RUnlock()

	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}

	if rec.TokenCiphertext == "" {
		return Credential{Token: rec.TokenPlain, Login: rec.Login}, nil
	}

	if v.sealer == nil {
		return Credential{}, &DecryptError{Identity: identity, Err: ErrMissingKey}
	}

	token, err := v.sealer.open(rec.TokenCiphertext)
	if err != nil {
		return Credential{}, &DecryptError{Identity: identity, Err: err}
	}

	return Credential{Token: token, Login: rec.Login}, nil
}

// Exists reports whether a record is stored for identity, without decrypting it.
func (v *Vault) Exists(identity string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, ok := v.records[identity]
	return ok
}

// List returns every stored credential sorted by identity.
func (v *Vault) List() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	entries := make([]Entry, 0, len(v.records))
	for id, rec := range v.records {
		entries = append(entries, Entry{
			Identity:  id,
			Login:     rec.Login,
			CreatedAt: rec.CreatedAt,
			Encrypted: rec.TokenCiphertext != "",
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity < entries[j].Identity
	})
	return entries
}

// ValidateIdentity checks the minimum identity length.
func ValidateIdentity(identity string) error {
	if len([]rune(identity)) < MinIdentityLength {
		return ErrInvalidIdentity
	}
	return nil
}

func (v *Vault) load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read credential store: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse credential store %s: %w", v.path, err)
	}
	v.records = records

	return nil
}

// persist replaces the document on disk. The caller holds v.mu.
func (v *Vault) persist() error {
	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(v.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	lock := flock.New(v.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout")
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, v.path); err != nil {
		return fmt.Errorf("failed to replace credential store: %w", err)
	}

	return nil
}
