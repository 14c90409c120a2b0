package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semmy-space/dirctl/internal/auth"
	"github.com/semmy-space/dirctl/internal/broker"
	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/direct"
	"github.com/semmy-space/dirctl/internal/vault"
)

func TestNewCLIError(t *testing.T) {
	err := NewCLIError(ExitAuth, "authentication failed")
	assert.Equal(t, ExitAuth, err.ExitCode)
	assert.Equal(t, "authentication failed", err.Message)
	assert.Empty(t, err.Hint)
}

func TestCLIErrorError(t *testing.T) {
	err := &CLIError{Message: "something broke"}
	assert.Equal(t, "something broke", err.Error())
}

func TestCLIErrorWithHint(t *testing.T) {
	err := NewCLIError(ExitAuth, "auth failed")
	result := err.WithHint("Run: dirctl auth login")

	// Fluent builder returns same pointer
	assert.Same(t, err, result)
	assert.Equal(t, "Run: dirctl auth login", err.Hint)
}

func TestCLIErrorImplementsError(t *testing.T) {
	var err error = NewCLIError(ExitGeneral, "test")
	assert.Equal(t, "test", err.Error())
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantHint bool
	}{
		{name: "config", err: &config.Error{Field: "client_id", Reason: "required"}, wantCode: ExitConfigError, wantHint: true},
		{name: "missing key", err: fmt.Errorf("open: %w", vault.ErrMissingKey), wantCode: ExitConfigError, wantHint: true},
		{name: "keyring without terminal", err: fmt.Errorf("keyring get failed: %w", vault.ErrNoTerminal), wantCode: ExitConfigError, wantHint: true},
		{name: "decrypt", err: &vault.DecryptError{Identity: "secret-code", Err: errors.New("message authentication failed")}, wantCode: ExitDecrypt, wantHint: true},
		{name: "credential not found", err: fmt.Errorf("%w: secret-code", broker.ErrCredentialNotFound), wantCode: ExitNotFound, wantHint: true},
		{name: "client login", err: broker.ErrClientLoginRequired, wantCode: ExitUsage, wantHint: true},
		{name: "short token", err: broker.ErrInvalidToken, wantCode: ExitUsage},
		{name: "network", err: &direct.TransportError{Service: "campaigns", Err: errors.New("connection refused")}, wantCode: ExitNetworkError},
		{name: "unauthorized", err: &direct.TransportError{Service: "campaigns", StatusCode: http.StatusUnauthorized}, wantCode: ExitAuth},
		{name: "forbidden", err: &direct.TransportError{Service: "campaigns", StatusCode: http.StatusForbidden}, wantCode: ExitForbidden},
		{name: "rate limited", err: &direct.TransportError{Service: "campaigns", StatusCode: http.StatusTooManyRequests}, wantCode: ExitRateLimit},
		{name: "server error", err: &direct.TransportError{Service: "campaigns", StatusCode: http.StatusBadGateway}, wantCode: ExitAPIError},
		{name: "api error", err: &direct.APIError{Service: "campaigns", Code: 8800, Message: "Object not found"}, wantCode: ExitAPIError},
		{name: "api authorization", err: &direct.APIError{Service: "campaigns", Code: 53, Message: "Authorization error"}, wantCode: ExitAuth, wantHint: true},
		{name: "report rejected", err: &direct.ReportError{StatusCode: http.StatusBadRequest}, wantCode: ExitAPIError},
		{name: "report exhausted", err: &direct.ReportExhaustedError{Attempts: 5, LastStatus: http.StatusAccepted}, wantCode: ExitTimeout, wantHint: true},
		{name: "code rejected", err: &auth.RejectedError{StatusCode: http.StatusBadRequest, Code: "invalid_grant"}, wantCode: ExitAuth, wantHint: true},
		{name: "token endpoint down", err: &auth.TransportError{Err: errors.New("dial tcp")}, wantCode: ExitNetworkError},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ExitTimeout},
		{name: "other", err: errors.New("boom"), wantCode: ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.ExitCode)
			assert.Equal(t, tt.err.Error(), got.Message)
			assert.Equal(t, tt.wantHint, got.Hint != "")
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestFromErrorPassesCLIErrorThrough(t *testing.T) {
	assert.Nil(t, FromError(nil))

	cliErr := NewCLIError(ExitConflict, "already exists")
	assert.Same(t, cliErr, FromError(fmt.Errorf("wrapped: %w", cliErr)))
}

func TestFail(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewWithWriters("plain", &out, &errOut)

	code := Fail(f, fmt.Errorf("%w: secret-code", broker.ErrCredentialNotFound))

	assert.Equal(t, ExitNotFound, code)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "error: no active or stored credential for identity: secret-code")
	assert.Contains(t, errOut.String(), "hint: Run: dirctl auth login")

	assert.Equal(t, ExitOK, Fail(f, nil))
}
