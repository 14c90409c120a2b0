package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/semmy-space/dirctl/internal/config"
)

const exchangeTimeout = 30 * time.Second

// TransportError is an exchange that never got an answer from the token endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("token endpoint unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RejectedError is a token endpoint answer without an access token.
// Code and Description carry the server's error and error_description.
type RejectedError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *RejectedError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("authorization code rejected: %s: %s", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("authorization code rejected: %s", e.Code)
	default:
		return fmt.Sprintf("authorization code rejected: %s", e.Description)
	}
}

// Exchanger trades authorization codes for access tokens.
type Exchanger struct {
	oauth  oauth2.Config
	client *http.Client
}

// NewExchanger creates an Exchanger for the application identified by cfg.
// Client credentials are sent in the form body, as Yandex expects.
func NewExchanger(cfg *config.Config, endpoints config.Endpoints) *Exchanger {
	return &Exchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   endpoints.AuthorizeURL(),
				TokenURL:  endpoints.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: &http.Client{Timeout: exchangeTimeout},
	}
}

// WithHTTPClient returns a copy of e that talks to the token endpoint through hc.
func (e *Exchanger) WithHTTPClient(hc *http.Client) *Exchanger {
	cp := *e
	cp.client = hc
	return &cp
}

// AuthorizeURL builds the URL the user opens to grant access.
func (e *Exchanger) AuthorizeURL(scope, state string) string {
	cfg := e.oauth
	cfg.Scopes = ParseScopes(scope)
	return cfg.AuthCodeURL(state)
}

// Exchange trades code for an access token. It makes exactly one request.
func (e *Exchanger) Exchange(ctx context.Context, code string) (string, error) {
	rt := &recordingTransport{base: e.client.Transport}
	hc := &http.Client{Timeout: e.client.Timeout, Transport: rt}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)

	tok, err := e.oauth.Exchange(ctx, code)
	if err == nil {
		return tok.AccessToken, nil
	}

	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &retrieveErr):
		rejected := &RejectedError{
			Code:        retrieveErr.ErrorCode,
			Description: retrieveErr.ErrorDescription,
		}
		if retrieveErr.Response != nil {
			rejected.StatusCode = retrieveErr.Response.StatusCode
		}
		if rejected.Code == "" && rejected.Description == "" {
			rejected.Description = string(retrieveErr.Body)
		}
		return "", rejected
	case rt.failed() != nil:
		return "", &TransportError{Err: rt.failed()}
	default:
		// 200 without access_token, or a body that is not a token response
		return "", &RejectedError{StatusCode: http.StatusOK, Description: err.Error()}
	}
}

// recordingTransport remembers a failed round trip so that a transport
// failure can be told apart from an answer the oauth2 package refused.
type recordingTransport struct {
	base http.RoundTripper

	mu  sync.Mutex
	err error
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}
	return resp, err
}

func (t *recordingTransport) failed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
