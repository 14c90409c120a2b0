package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

// keyringItem is the keyring entry holding the raw encryption key.
const keyringItem = "token-encryption-key"

var (
	// ErrKeyNotStored is returned when the keyring holds no encryption key.
	ErrKeyNotStored = errors.New("no encryption key stored in keyring")

	// ErrNoTerminal is returned when the file keyring needs its password but
	// the process has no controlling terminal to ask on.
	ErrNoTerminal = errors.New("keyring password needs a terminal")
)

// KeyringKeySource loads the encryption key from the OS keyring.
type KeyringKeySource struct {
	ring keyring.Keyring
}

// OpenKeyring opens the keyring for serviceName.
// Hosts where FileBackendOnly is true are limited to the encrypted file backend under fileDir.
func OpenKeyring(serviceName, fileDir string) (*KeyringKeySource, error) {
	cfg := keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true, // macOS: don't prompt every access
		FileDir:                  fileDir,
		FilePasswordFunc:         ttyPrompt(os.Stderr, readTTYPassword),
	}
	if FileBackendOnly() {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return NewKeyringKeySource(ring), nil
}

// ttyPrompt asks for the file keyring password without touching stdin or
// stdout, which carry the tool protocol under "dirctl serve".
func ttyPrompt(out io.Writer, readPassword func() ([]byte, error)) keyring.PromptFunc {
	return func(prompt string) (string, error) {
		fmt.Fprintf(out, "%s: ", prompt)
		password, err := readPassword()
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(password), nil
	}
}

func readTTYPassword() ([]byte, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTerminal, err)
	}
	defer tty.Close()
	return term.ReadPassword(int(tty.Fd()))
}

// NewKeyringKeySource wraps an already opened keyring.
func NewKeyringKeySource(ring keyring.Keyring) *KeyringKeySource {
	return &KeyringKeySource{ring: ring}
}

// Key returns the stored key.
func (s *KeyringKeySource) Key() ([]byte, error) {
	item, err := s.ring.Get(keyringItem)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrKeyNotStored
		}
		return nil, fmt.Errorf("keyring get failed: %w", err)
	}
	if len(item.Data) != KeySize {
		return nil, fmt.Errorf("%w: keyring holds %d bytes", ErrInvalidKey, len(item.Data))
	}
	return item.Data, nil
}

// Store saves key, replacing any previous one.
func (s *KeyringKeySource) Store(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}
	item := keyring.Item{
		Key:         keyringItem,
		Data:        key,
		Label:       "dirctl token encryption key",
		Description: "AES-256 key for the dirctl credential store",
	}
	if err := s.ring.Set(item); err != nil {
		return fmt.Errorf("keyring set failed: %w", err)
	}
	return nil
}

// FileBackendOnly reports hosts where desktop keyrings are unreliable:
// WSL and Linux sessions without a display server.
func FileBackendOnly() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return true
	}

	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}
