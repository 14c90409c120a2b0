package output

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/semmy-space/dirctl/internal/auth"
	"github.com/semmy-space/dirctl/internal/broker"
	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/direct"
	"github.com/semmy-space/dirctl/internal/vault"
)

// Exit codes following sysexits.h convention
const (
	ExitOK           = 0  // Success
	ExitGeneral      = 1  // General error
	ExitUsage        = 2  // Invalid usage / bad arguments
	ExitAuth         = 3  // Authentication failure
	ExitNotFound     = 4  // Credential not found
	ExitConflict     = 5  // Conflict
	ExitForbidden    = 6  // Permission denied
	ExitRateLimit    = 75 // Rate limited (EX_TEMPFAIL from sysexits.h)
	ExitTimeout      = 8  // Report not ready in time, or deadline exceeded
	ExitAPIError     = 9  // Direct API error (non-specific)
	ExitConfigError  = 10 // Configuration error
	ExitNetworkError = 11 // Network connectivity error
	ExitDecrypt      = 12 // Stored credential cannot be decrypted
)

// Yandex Direct error codes with a dedicated exit code
const (
	apiCodeAuthorization = 53
	apiCodeNoRights      = 54
)

// CLIError represents a structured error with exit code and optional hint
type CLIError struct {
	ExitCode int
	Message  string
	Hint     string
	Err      error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError
func NewCLIError(code int, msg string) *CLIError {
	return &CLIError{
		ExitCode: code,
		Message:  msg,
	}
}

// WithHint adds a user-facing hint to the error
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// FromError classifies err into an exit code and a hint. A *CLIError
// anywhere in the chain is returned as is.
func FromError(err error) *CLIError {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	wrap := func(code int, hint string) *CLIError {
		return &CLIError{ExitCode: code, Message: err.Error(), Hint: hint, Err: err}
	}

	var (
		cfgErr       *config.Error
		decErr       *vault.DecryptError
		transportErr *direct.TransportError
		apiErr       *direct.APIError
		reportErr    *direct.ReportError
		rejected     *auth.RejectedError
		oauthNetErr  *auth.TransportError
	)

	switch {
	case errors.As(err, &cfgErr):
		return wrap(ExitConfigError, fmt.Sprintf("Run: dirctl config set %s <value>", cfgErr.Field))
	case errors.Is(err, vault.ErrMissingKey):
		return wrap(ExitConfigError, "Set TOKEN_ENCRYPTION_KEY_BASE64 or run: dirctl config set key_source keyring")
	case errors.Is(err, vault.ErrInvalidKey), errors.Is(err, vault.ErrKeyNotStored):
		return wrap(ExitConfigError, "Run: dirctl auth keygen --keyring")
	case errors.Is(err, vault.ErrNoTerminal):
		return wrap(ExitConfigError, "Run from a terminal once, or set TOKEN_ENCRYPTION_KEY_BASE64 instead of key_source keyring")
	case errors.As(err, &decErr):
		return wrap(ExitDecrypt, "The encryption key differs from the one the credential was stored with")
	case errors.Is(err, broker.ErrCredentialNotFound), errors.Is(err, vault.ErrNotFound):
		return wrap(ExitNotFound, "Run: dirctl auth login or dirctl auth attach")
	case errors.Is(err, broker.ErrClientLoginRequired):
		return wrap(ExitUsage, "Pass --client-login or store a login with: dirctl auth attach --login")
	case errors.Is(err, broker.ErrInvalidToken), errors.Is(err, vault.ErrInvalidIdentity):
		return wrap(ExitUsage, "")
	case errors.Is(err, direct.ErrReportExhausted):
		return wrap(ExitTimeout, "The report is still being built. Retry later or raise --max-retries")
	case errors.As(err, &transportErr):
		return wrap(transportExitCode(transportErr), "")
	case errors.As(err, &apiErr):
		switch apiErr.Code {
		case apiCodeAuthorization:
			return wrap(ExitAuth, "The token was revoked or expired. Run: dirctl auth login")
		case apiCodeNoRights:
			return wrap(ExitForbidden, "")
		}
		return wrap(ExitAPIError, "")
	case errors.As(err, &reportErr):
		return wrap(ExitAPIError, "")
	case errors.As(err, &rejected):
		return wrap(ExitAuth, "Authorization codes are single use and expire quickly. Run: dirctl auth login")
	case errors.As(err, &oauthNetErr):
		return wrap(ExitNetworkError, "")
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(ExitTimeout, "")
	}

	return wrap(ExitGeneral, "")
}

func transportExitCode(err *direct.TransportError) int {
	switch err.StatusCode {
	case 0:
		return ExitNetworkError
	case http.StatusUnauthorized:
		return ExitAuth
	case http.StatusForbidden:
		return ExitForbidden
	case http.StatusTooManyRequests:
		return ExitRateLimit
	default:
		return ExitAPIError
	}
}

// Fail prints err and its hint through the formatter and returns the exit code
// the process should end with. The os.Exit call stays in main.
func Fail(formatter Formatter, err error) int {
	cliErr := FromError(err)
	if cliErr == nil {
		return ExitOK
	}

	formatter.PrintError(cliErr)
	if cliErr.Hint != "" {
		formatter.PrintHint(cliErr.Hint)
	}
	return cliErr.ExitCode
}
