package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/mcp"
	"github.com/semmy-space/dirctl/internal/tools"
)

// ServeCmd runs the tool server on stdin and stdout
type ServeCmd struct {
	MaxInFlight int `help:"Tool calls allowed to run at once" default:"8"`
}

// Run serves until stdin is closed or the process is interrupted
func (cmd *ServeCmd) Run(ctx context.Context, kctx *kong.Context, sp *ServiceProvider) error {
	cfg, err := sp.Config()
	if err != nil {
		return err
	}
	b, err := sp.Broker()
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(shutdownCtx)
	}()

	srv := mcp.NewServer("dirctl", kctx.Model.Vars()["version"])
	srv.SetMaxInFlight(cmd.MaxInFlight)
	tools.Register(srv, b, cfg.DefaultIdentity)

	logging.FromContext(ctx).Info("serving tools on stdio", "store", b.Vault().Path(), "encrypted", b.Vault().Encrypted())
	return serve(ctx, srv, os.Stdin, os.Stdout)
}

// serve treats cancellation of ctx as a clean shutdown.
func serve(ctx context.Context, srv *mcp.Server, in io.Reader, out io.Writer) error {
	err := srv.Serve(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		logging.FromContext(ctx).Info("tool server stopped")
		return nil
	}
	return err
}
