package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DefaultRedirectURI    = "http://localhost:8787/oauth/callback"
	DefaultCallbackPort   = 8787
	DefaultAcceptLanguage = "ru"
	DefaultIdentity       = "default"
	EncryptionKeySize     = 32
	KeySourceEnv          = "env"
	KeySourceKeyring      = "keyring"
)

// Environment variables read by ApplyEnv
const (
	envClientID        = "YANDEX_CLIENT_ID"
	envClientSecret    = "YANDEX_CLIENT_SECRET"
	envRedirectURI     = "OAUTH_REDIRECT_URI"
	envCallbackPort    = "OAUTH_CALLBACK_PORT"
	envEncryptionKey   = "TOKEN_ENCRYPTION_KEY_BASE64"
	envEnvironment     = "DIRCTL_ENVIRONMENT"
	envStorePath       = "DIRCTL_STORE_PATH"
	envKeySource       = "DIRCTL_KEY_SOURCE"
	envDefaultIdentity = "DIRCTL_DEFAULT_IDENTITY"
	envAcceptLanguage  = "DIRCTL_ACCEPT_LANGUAGE"
)

// Error reports an invalid or missing configuration value.
// It is fatal: callers surface it instead of retrying.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config holds the CLI configuration
type Config struct {
	ClientID        string `json:"client_id,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
	RedirectURI     string `json:"redirect_uri,omitempty"`
	CallbackPort    int    `json:"callback_port,omitempty"`
	Environment     string `json:"environment,omitempty"`
	AcceptLanguage  string `json:"accept_language,omitempty"`
	StorePath       string `json:"store_path,omitempty"`
	KeySource       string `json:"key_source,omitempty"`
	EncryptionKey   string `json:"encryption_key,omitempty"`
	DefaultIdentity string `json:"default_identity,omitempty"`
	DefaultOutput   string `json:"default_output,omitempty"`

	path string
}

// Load reads config from the XDG path, returns defaults if the file doesn't exist
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path. A missing file yields an empty config bound to path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{path: path}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json5.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = path

	return &cfg, nil
}

// Path returns the file the config is saved to
func (c *Config) Path() string {
	if c.path == "" {
		return ConfigPath()
	}
	return c.path
}

// Save writes the config file
func (c *Config) Save() error {
	path := c.Path()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// JSON is valid JSON5
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables on top of file values.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		envClientID:        &c.ClientID,
		envClientSecret:    &c.ClientSecret,
		envRedirectURI:     &c.RedirectURI,
		envEncryptionKey:   &c.EncryptionKey,
		envEnvironment:     &c.Environment,
		envStorePath:       &c.StorePath,
		envKeySource:       &c.KeySource,
		envDefaultIdentity: &c.DefaultIdentity,
		envAcceptLanguage:  &c.AcceptLanguage,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*field = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(envCallbackPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Field: envCallbackPort, Reason: fmt.Sprintf("not a number: %q", v)}
		}
		c.CallbackPort = port
	}

	return nil
}

// ApplyDefaults fills every optional field that is still empty
func (c *Config) ApplyDefaults() {
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = DefaultCallbackPort
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath()
	}
	if c.KeySource == "" {
		c.KeySource = KeySourceEnv
	}
	if c.DefaultIdentity == "" {
		c.DefaultIdentity = DefaultIdentity
	}
}

// Validate checks every configured value once, at startup.
// Client credentials are optional here; see RequireOAuth.
func (c *Config) Validate() error {
	if _, err := GetEnvironment(c.Environment); err != nil {
		return &Error{Field: "environment", Reason: err.Error()}
	}
	if c.CallbackPort < 0 || c.CallbackPort > 65535 {
		return &Error{Field: "callback_port", Reason: fmt.Sprintf("out of range: %d", c.CallbackPort)}
	}
	if c.RedirectURI != "" {
		u, err := url.Parse(c.RedirectURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &Error{Field: "redirect_uri", Reason: fmt.Sprintf("not an absolute URL: %q", c.RedirectURI)}
		}
	}
	switch c.KeySource {
	case "", KeySourceEnv, KeySourceKeyring:
	default:
		return &Error{Field: "key_source", Reason: fmt.Sprintf("must be %q or %q", KeySourceEnv, KeySourceKeyring)}
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}
	return nil
}

// RequireOAuth reports a configuration error when client credentials are missing
func (c *Config) RequireOAuth() error {
	if c.ClientID == "" {
		return &Error{Field: "client_id", Reason: "required for OAuth (set " + envClientID + ")"}
	}
	if c.ClientSecret == "" {
		return &Error{Field: "client_secret", Reason: "required for OAuth (set " + envClientSecret + ")"}
	}
	return nil
}

// EncryptionKeyBytes decodes the configured key.
// It returns nil, nil when no key is configured.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	return DecodeKey(c.EncryptionKey)
}

// DecodeKey decodes a base64 encryption key and checks its length
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, &Error{Field: "encryption_key", Reason: "not valid base64"}
	}
	if len(key) != EncryptionKeySize {
		return nil, &Error{Field: "encryption_key", Reason: fmt.Sprintf("must decode to %d bytes, got %d", EncryptionKeySize, len(key))}
	}
	return key, nil
}

// Endpoints returns the endpoints of the configured environment
func (c *Config) Endpoints() (Endpoints, error) {
	return GetEnvironment(c.Environment)
}

// CallbackPath returns the path component of the redirect URI
func (c *Config) CallbackPath() string {
	u, err := url.Parse(c.RedirectURI)
	if err != nil || u.Path == "" {
		return "/oauth/callback"
	}
	return u.Path
}

// Get retrieves a config value by key name
func (c *Config) Get(key string) (string, error) {
	field, err := c.field(key)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", field.Interface()), nil
}

// Set sets a config value by key name and saves
func (c *Config) Set(key, value string) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}

	switch field.Kind() {
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		field.SetInt(int64(n))
	default:
		field.SetString(value)
	}
	return c.Save()
}

// Unset sets a config value to its zero value and saves
func (c *Config) Unset(key string) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}
	field.Set(reflect.Zero(field.Type()))
	return c.Save()
}

// Keys returns the config keys in declaration order
func (c *Config) Keys() []string {
	t := reflect.TypeOf(*c)
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" {
			keys = append(keys, name)
		}
	}
	return keys
}

func (c *Config) field(key string) (reflect.Value, error) {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" && name == key {
			return v.Field(i), nil
		}
	}

	return reflect.Value{}, fmt.Errorf("unknown config key: %s", key)
}

func jsonName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	return name
}
