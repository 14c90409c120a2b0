package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/willabides/kongplete"

	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/output"
)

// FormatterProvider wraps the formatter interface for Kong binding
type FormatterProvider struct {
	Formatter output.Formatter
}

// CLI is the root command structure
type CLI struct {
	Globals

	Serve      ServeCmd                     `cmd:"" help:"Serve the Direct tools over stdio (Model Context Protocol)"`
	Auth       AuthCmd                      `cmd:"" help:"Credential commands"`
	Call       CallCmd                      `cmd:"" help:"Call an API v5 service method"`
	Report     ReportCmd                    `cmd:"" help:"Fetch a report as TSV"`
	Config     ConfigCmd                    `cmd:"" help:"Configuration commands"`
	Schema     SchemaCmd                    `cmd:"" help:"Print the command tree as JSON"`
	Version    VersionCmd                   `cmd:"" help:"Show version information"`
	Completion kongplete.InstallCompletions `cmd:"" help:"Install shell completions"`

	// Logger is built from the global flags once they are applied.
	Logger *slog.Logger `kong:"-"`
}

// AfterApply hook runs before any command execution, once flags are applied.
// It loads the config file, creates the formatter and logger, and binds dependencies
func (c *CLI) AfterApply(ctx *kong.Context) error {
	// Load config from XDG path (returns defaults if missing)
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	mode := c.ResolvedOutput(cfg.DefaultOutput)
	formatter := &FormatterProvider{Formatter: output.New(mode)}
	if mode == "json" && c.ResultsOnly {
		formatter.Formatter = output.NewJSON(true)
	}

	c.Logger = logging.New(os.Stderr, c.Verbose)
	services := NewServiceProvider(cfg)
	services.SetLogger(c.Logger)

	ctx.Bind(cfg)
	ctx.Bind(formatter)
	ctx.Bind(&c.Globals)
	ctx.Bind(services)

	return nil
}

// AuthCmd holds credential subcommands
type AuthCmd struct {
	Login    AuthLoginCmd    `cmd:"" help:"Authorize through Yandex OAuth and store the token"`
	Attach   AuthAttachCmd   `cmd:"" help:"Store an already issued OAuth token"`
	Activate AuthActivateCmd `cmd:"" help:"Check that a stored token can be used"`
	List     AuthListCmd     `cmd:"" help:"List stored credentials"`
	Keygen   AuthKeygenCmd   `cmd:"" help:"Generate a token encryption key"`
}

// ConfigCmd holds configuration subcommands
type ConfigCmd struct {
	Get   ConfigGetCmd        `cmd:"" help:"Get a configuration value"`
	Set   ConfigSetCmd        `cmd:"" help:"Set a configuration value"`
	Unset ConfigUnsetCmd      `cmd:"" help:"Remove a configuration value"`
	List  ConfigListConfigCmd `cmd:"" name:"list" help:"List all configuration values"`
	Path  ConfigPathCmd       `cmd:"" help:"Show config file path"`
}

// VersionCmd shows version information
type VersionCmd struct{}

func (cmd *VersionCmd) Run(ctx *kong.Context) error {
	fmt.Fprintf(ctx.Stdout, "dirctl version %s\n", ctx.Model.Vars()["version"])
	return nil
}
