// Package broker owns the credential state of a running process: the vault,
// the active credentials, pending OAuth logins and the callback listener.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/semmy-space/dirctl/internal/auth"
	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/direct"
	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/vault"
)

// MinTokenLength is the shortest OAuth token accepted by Attach.
const MinTokenLength = 10

var (
	// ErrCredentialNotFound means the identity has neither an active nor a stored credential.
	ErrCredentialNotFound = errors.New("no active or stored credential for identity")

	// ErrClientLoginRequired means no client login was passed and none is stored.
	ErrClientLoginRequired = errors.New("client login is required: pass it explicitly or store it with the credential")

	// ErrInvalidToken is returned for tokens shorter than MinTokenLength.
	ErrInvalidToken = fmt.Errorf("oauth token must be at least %d characters", MinTokenLength)

	// ErrUnknownState is returned for a redirect whose state no pending login issued.
	ErrUnknownState = errors.New("unknown or already used OAuth state")
)

// CredentialInfo describes a stored credential. It never carries the token.
type CredentialInfo struct {
	Identity  string    `json:"identity"`
	Login     string    `json:"login,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Encrypted bool      `json:"encrypted"`
	Active    bool      `json:"active"`
}

// Login is an OAuth authorization in progress.
type Login struct {
	URL      string
	State    string
	Identity string

	once sync.Once
	done chan struct{}
	err  error
}

// Done is closed when the login completes or fails.
func (l *Login) Done() <-chan struct{} {
	return l.done
}

// Err returns the outcome once Done is closed.
func (l *Login) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

func (l *Login) finish(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

// Option configures a Broker.
type Option func(*Broker)

// WithEndpoints overrides the endpoints of the configured environment.
func WithEndpoints(e config.Endpoints) Option {
	return func(b *Broker) {
		b.endpoints = e
		b.endpointsSet = true
	}
}

// WithClientOptions adds options to every API client the broker builds.
func WithClientOptions(opts ...direct.Option) Option {
	return func(b *Broker) {
		b.clientOpts = append(b.clientOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Broker resolves identities to API clients. All methods are safe for
// concurrent use.
type Broker struct {
	cfg          *config.Config
	endpoints    config.Endpoints
	endpointsSet bool
	vault        *vault.Vault
	active       *ActiveSet
	clientOpts   []direct.Option
	logger       *slog.Logger

	mu        sync.Mutex
	exchanger *auth.Exchanger
	callback  *auth.CallbackServer
	pending   map[string]*Login
}

// New creates a Broker over v. cfg must already be validated.
func New(cfg *config.Config, v *vault.Vault, opts ...Option) (*Broker, error) {
	b := &Broker{
		cfg:     cfg,
		vault:   v,
		active:  NewActiveSet(),
		logger:  logging.Discard(),
		pending: make(map[string]*Login),
	}
	for _, opt := range opts {
		opt(b)
	}

	if !b.endpointsSet {
		endpoints, err := cfg.Endpoints()
		if err != nil {
			return nil, &config.Error{Field: "environment", Reason: err.Error()}
		}
		b.endpoints = endpoints
	}

	return b, nil
}

// Vault returns the underlying credential store.
func (b *Broker) Vault() *vault.Vault {
	return b.vault
}

// Attach stores token under identity and makes it active.
func (b *Broker) Attach(identity, token, login string) error {
	if err := vault.ValidateIdentity(identity); err != nil {
		return err
	}
	if len(token) < MinTokenLength {
		return ErrInvalidToken
	}

	if err := b.vault.Upsert(identity, token, login); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	b.active.Set(identity, vault.Credential{Token: token, Login: login})

	b.logger.Info("credential attached", "identity", identity, "login", login)
	return nil
}

// Activate copies the stored credential of identity into the active set.
// It stays active until the next Attach or Activate for the same identity.
func (b *Broker) Activate(identity string) error {
	cred, err := b.resolve(identity)
	if err != nil {
		return err
	}
	b.active.Set(identity, cred)

	b.logger.Info("credential activated", "identity", identity)
	return nil
}

// Credential returns the active credential of identity, falling back to the
// stored one. The fallback does not activate it.
func (b *Broker) Credential(identity string) (vault.Credential, error) {
	if cred, ok := b.active.Get(identity); ok {
		return cred, nil
	}
	return b.resolve(identity)
}

func (b *Broker) resolve(identity string) (vault.Credential, error) {
	cred, err := b.vault.Resolve(identity)
	if errors.Is(err, vault.ErrNotFound) {
		return vault.Credential{}, fmt.Errorf("%w: %s", ErrCredentialNotFound, identity)
	}
	return cred, err
}

// Client builds an API client for identity. clientLogin overrides the login
// stored with the credential.
func (b *Broker) Client(identity, clientLogin string) (*direct.Client, error) {
	cred, err := b.Credential(identity)
	if err != nil {
		return nil, err
	}

	login := clientLogin
	if login == "" {
		login = cred.Login
	}
	if login == "" {
		return nil, ErrClientLoginRequired
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"})
	opts := append([]direct.Option{direct.WithLanguage(b.cfg.AcceptLanguage)}, b.clientOpts...)

	return direct.NewClient(b.endpoints, ts, login, opts...), nil
}

// Credentials lists stored credentials with their active flag.
func (b *Broker) Credentials() []CredentialInfo {
	entries := b.vault.List()
	infos := make([]CredentialInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, CredentialInfo{
			Identity:  e.Identity,
			Login:     e.Login,
			CreatedAt: e.CreatedAt,
			Encrypted: e.Encrypted,
			Active:    b.active.Has(e.Identity),
		})
	}
	return infos
}

// BeginLogin registers a pending login for identity and returns the URL to
// authorize it. The redirect is completed by CompleteLogin.
func (b *Broker) BeginLogin(identity, scope string) (*Login, error) {
	if err := b.cfg.RequireOAuth(); err != nil {
		return nil, err
	}
	if err := vault.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if scope == "" {
		scope = auth.DefaultScope
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state := uuid.NewString()
	login := &Login{
		URL:      b.exchangerLocked().AuthorizeURL(scope, state),
		State:    state,
		Identity: identity,
		done:     make(chan struct{}),
	}
	b.pending[state] = login

	return login, nil
}

// StartLogin is BeginLogin plus the callback listener, started on first use
// and shared by every later login.
func (b *Broker) StartLogin(ctx context.Context, identity, scope string) (*Login, error) {
	login, err := b.BeginLogin(identity, scope)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.callback == nil {
		b.callback = auth.NewCallbackServer(b.cfg.CallbackPort, b.cfg.CallbackPath(), b.CompleteLogin)
	}
	cb := b.callback
	b.mu.Unlock()

	if cb.Running() {
		logging.FromContext(ctx).Debug("reusing OAuth callback listener", "addr", cb.Addr())
		return login, nil
	}
	if err := cb.Start(ctx); err != nil {
		b.forget(login.State)
		return nil, err
	}

	return login, nil
}

// CompleteLogin exchanges code for the login that issued state, then attaches
// and activates the token.
func (b *Broker) CompleteLogin(ctx context.Context, state, code string) error {
	login, ok := b.forget(state)
	if !ok {
		return ErrUnknownState
	}

	b.mu.Lock()
	exchanger := b.exchangerLocked()
	b.mu.Unlock()

	token, err := exchanger.Exchange(ctx, code)
	if err == nil {
		err = b.Attach(login.Identity, token, "")
	}
	if err != nil {
		logging.FromContext(ctx).Warn("login failed", "identity", login.Identity, "error", err)
	}

	login.finish(err)
	return err
}

// CallbackAddr returns the address of the callback listener, or "" when it
// is not running.
func (b *Broker) CallbackAddr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.callback == nil {
		return ""
	}
	return b.callback.Addr()
}

// Close stops the callback listener.
func (b *Broker) Close(ctx context.Context) error {
	b.mu.Lock()
	cb := b.callback
	b.callback = nil
	b.mu.Unlock()

	if cb == nil {
		return nil
	}
	return cb.Shutdown(ctx)
}

func (b *Broker) forget(state string) (*Login, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	login, ok := b.pending[state]
	delete(b.pending, state)
	return login, ok
}

// exchangerLocked returns the exchanger, creating it on first use. The caller holds b.mu.
func (b *Broker) exchangerLocked() *auth.Exchanger {
	if b.exchanger == nil {
		b.exchanger = auth.NewExchanger(b.cfg, b.endpoints)
	}
	return b.exchanger
}
