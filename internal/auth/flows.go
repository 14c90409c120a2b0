package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrStateMismatch is returned when a redirect carries a state we did not issue.
var ErrStateMismatch = errors.New("state mismatch (possible CSRF attack)")

// Redirect is the authorization server's answer as seen in the redirect URL.
type Redirect struct {
	Code  string
	State string
}

// ParseRedirect extracts the code and state from a pasted redirect URL.
// A bare code is accepted too, since Yandex can show the code on its own
// verification page instead of redirecting.
func ParseRedirect(raw string) (Redirect, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Redirect{}, errors.New("no authorization code entered")
	}

	if !strings.Contains(raw, "?") && !strings.Contains(raw, "://") {
		return Redirect{Code: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Redirect{}, fmt.Errorf("invalid URL: %w", err)
	}

	query := u.Query()
	if oauthErr := query.Get("error"); oauthErr != "" {
		if desc := query.Get("error_description"); desc != "" {
			return Redirect{}, &RejectedError{Code: oauthErr, Description: desc}
		}
		return Redirect{}, &RejectedError{Code: oauthErr}
	}

	code := query.Get("code")
	if code == "" {
		return Redirect{}, errors.New("no authorization code found in URL")
	}

	return Redirect{Code: code, State: query.Get("state")}, nil
}

// ReadRedirect prints the manual login instructions to w and reads one
// pasted line from r.
func ReadRedirect(r io.Reader, w io.Writer, authURL string) (Redirect, error) {
	fmt.Fprintf(w, "\n=== Manual OAuth Flow ===\n\n")
	fmt.Fprintf(w, "1. Visit this URL in your browser:\n\n%s\n\n", authURL)
	fmt.Fprintf(w, "2. After authorizing, you'll be redirected to a page that may not load.\n")
	fmt.Fprintf(w, "3. Copy the FULL URL from the address bar (or the code shown) and paste it here.\n\n")
	fmt.Fprintf(w, "Paste the redirect URL: ")

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return Redirect{}, fmt.Errorf("failed to read input: %w", err)
	}

	return ParseRedirect(line)
}
