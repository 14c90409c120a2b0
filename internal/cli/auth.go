package cli

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/semmy-space/dirctl/internal/auth"
	"github.com/semmy-space/dirctl/internal/broker"
	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/output"
	"github.com/semmy-space/dirctl/internal/vault"
	"github.com/semmy-space/dirctl/pkg/browser"
)

// AuthLoginCmd implements the auth login command
type AuthLoginCmd struct {
	Scope     string        `help:"OAuth scope" default:"direct:api"`
	Login     string        `help:"Advertiser login to store with the token"`
	Manual    bool          `help:"Manual paste mode (no callback listener, no browser)" short:"m"`
	NoBrowser bool          `help:"Print the URL instead of opening a browser" name:"no-browser"`
	Timeout   time.Duration `help:"How long to wait for the redirect" default:"5m"`
}

// Run executes the login command
func (cmd *AuthLoginCmd) Run(ctx context.Context, sp *ServiceProvider, fp *FormatterProvider, globals *Globals) error {
	b, err := sp.Broker()
	if err != nil {
		return err
	}
	cfg, _ := sp.Config()
	identity := globals.IdentityOr(cfg.DefaultIdentity)

	if cmd.Manual {
		err = cmd.manual(ctx, b, identity, os.Stdin)
	} else {
		err = cmd.interactive(ctx, b, identity)
	}
	if err != nil {
		return err
	}

	if cmd.Login != "" {
		cred, err := b.Credential(identity)
		if err != nil {
			return err
		}
		if err := b.Attach(identity, cred.Token, cmd.Login); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "✓ Authenticated as %s\n", identity)
	fmt.Fprintf(os.Stderr, "Token stored in %s\n", b.Vault().Path())
	if !b.Vault().Encrypted() {
		fmt.Fprintf(os.Stderr, "Warning: tokens are stored in plain text. Run: dirctl auth keygen\n")
	}
	return nil
}

// interactive waits for the redirect on the local callback listener.
func (cmd *AuthLoginCmd) interactive(ctx context.Context, b *broker.Broker, identity string) error {
	login, err := b.StartLogin(ctx, identity, cmd.Scope)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "Open this URL to authorize dirctl:\n\n%s\n\n", login.URL)
	if !cmd.NoBrowser {
		if err := browser.Open(login.URL); err != nil {
			logging.FromContext(ctx).Debug("browser not opened", "error", err)
		}
	}
	fmt.Fprintf(os.Stderr, "Waiting for the redirect on %s ...\n", b.CallbackAddr())

	timer := time.NewTimer(cmd.Timeout)
	defer timer.Stop()

	select {
	case <-login.Done():
		return login.Err()
	case <-timer.C:
		return output.NewCLIError(output.ExitTimeout, "Timed out waiting for the OAuth redirect").
			WithHint("Run again with --manual to paste the redirect URL")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// manual reads the pasted redirect URL or code and completes the login.
func (cmd *AuthLoginCmd) manual(ctx context.Context, b *broker.Broker, identity string, in io.Reader) error {
	login, err := b.BeginLogin(identity, cmd.Scope)
	if err != nil {
		return err
	}

	redirect, err := auth.ReadRedirect(in, os.Stderr, login.URL)
	if err != nil {
		return err
	}
	if redirect.State != "" && redirect.State != login.State {
		return auth.ErrStateMismatch
	}

	return b.CompleteLogin(ctx, login.State, redirect.Code)
}

// AuthAttachCmd implements the auth attach command
type AuthAttachCmd struct {
	Token string `arg:"" optional:"" help:"OAuth token; read from stdin when omitted or '-'"`
	Login string `help:"Advertiser login to store with the token"`
}

// Run executes the attach command
func (cmd *AuthAttachCmd) Run(sp *ServiceProvider, fp *FormatterProvider, globals *Globals) error {
	b, err := sp.Broker()
	if err != nil {
		return err
	}
	cfg, _ := sp.Config()
	identity := globals.IdentityOr(cfg.DefaultIdentity)

	token := cmd.Token
	if token == "" || token == "-" {
		if token, err = readSecret(os.Stdin, "OAuth token: "); err != nil {
			return err
		}
	}

	if err := b.Attach(identity, token, cmd.Login); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Token attached to %s\n", identity)
	return nil
}

// readSecret reads one line, without echo when in is a terminal.
func readSecret(in *os.File, prompt string) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		data, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return readLine(in)
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// AuthActivateCmd implements the auth activate command
type AuthActivateCmd struct{}

// Run executes the activate command. Activation lasts for the process, so on
// the command line it only proves the stored token can be decrypted; the
// tool server keeps it active for its lifetime.
func (cmd *AuthActivateCmd) Run(sp *ServiceProvider, globals *Globals) error {
	b, err := sp.Broker()
	if err != nil {
		return err
	}
	cfg, _ := sp.Config()
	identity := globals.IdentityOr(cfg.DefaultIdentity)

	if err := b.Activate(identity); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Credential %s is usable\n", identity)
	return nil
}

// AuthListCmd implements the auth list command
type AuthListCmd struct{}

// Run executes the list command
func (cmd *AuthListCmd) Run(sp *ServiceProvider, fp *FormatterProvider) error {
	b, err := sp.Broker()
	if err != nil {
		return err
	}

	creds := b.Credentials()
	if len(creds) == 0 {
		fmt.Fprintf(os.Stderr, "No stored credentials found\n")
		fmt.Fprintf(os.Stderr, "Run 'dirctl auth login' or 'dirctl auth attach' to add one\n")
		return nil
	}

	type credentialRow struct {
		Identity  string
		Login     string
		Encrypted string
		Created   string
	}

	rows := make([]credentialRow, 0, len(creds))
	for _, c := range creds {
		rows = append(rows, credentialRow{
			Identity:  c.Identity,
			Login:     c.Login,
			Encrypted: formatBool(c.Encrypted),
			Created:   c.CreatedAt.Local().Format(time.RFC3339),
		})
	}

	return fp.Formatter.PrintList(rows, []output.Column{
		{Name: "Identity", Key: "Identity", Width: 32},
		{Name: "Login", Key: "Login", Width: 32},
		{Name: "Encrypted", Key: "Encrypted"},
		{Name: "Created", Key: "Created"},
	})
}

// AuthKeygenCmd implements the auth keygen command
type AuthKeygenCmd struct {
	Keyring bool `help:"Store the key in the OS keyring instead of printing it"`
}

// Run executes the keygen command
func (cmd *AuthKeygenCmd) Run(cfg *config.Config) error {
	key, err := vault.GenerateKey()
	if err != nil {
		return err
	}

	if !cmd.Keyring {
		fmt.Println(base64.StdEncoding.EncodeToString(key))
		fmt.Fprintf(os.Stderr, "Export it as TOKEN_ENCRYPTION_KEY_BASE64. Tokens stored under another key cannot be read with this one.\n")
		return nil
	}

	source, err := vault.OpenKeyring(config.AppName, config.DataDir())
	if err != nil {
		return err
	}
	if _, err := source.Key(); err == nil {
		return output.NewCLIError(output.ExitConflict, "An encryption key is already stored in the keyring").
			WithHint("Replacing it would make stored tokens unreadable")
	} else if !errors.Is(err, vault.ErrKeyNotStored) {
		return err
	}
	if err := source.Store(key); err != nil {
		return err
	}

	cfg.KeySource = config.KeySourceKeyring
	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Key stored in the keyring; key_source set to keyring\n")
	return nil
}

func formatBool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
