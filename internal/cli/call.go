package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/semmy-space/dirctl/internal/direct"
	"github.com/semmy-space/dirctl/internal/output"
)

// CallCmd implements the call command
type CallCmd struct {
	Service     string `arg:"" help:"API v5 service (campaigns, adgroups, ads, keywords, ...)"`
	Method      string `arg:"" help:"Service method (get, add, update, delete, suspend, resume, ...)"`
	Params      string `help:"Method params as a JSON object" xor:"params"`
	ParamsFile  string `help:"Read params from a JSON file ('-' for stdin)" predictor:"file" xor:"params"`
	ClientLogin string `help:"Advertiser login sent as Client-Login; defaults to the stored login" env:"DIRCTL_CLIENT_LOGIN"`
}

// Run executes the call command
func (cmd *CallCmd) Run(ctx context.Context, sp *ServiceProvider, fp *FormatterProvider, globals *Globals) error {
	params, err := readDocument("params", cmd.Params, cmd.ParamsFile, os.Stdin)
	if err != nil {
		return err
	}

	client, err := clientFor(sp, globals, cmd.ClientLogin)
	if err != nil {
		return err
	}

	result, err := client.Invoke(ctx, cmd.Service, cmd.Method, params)
	if err != nil {
		return err
	}
	return fp.Formatter.Print(result)
}

func clientFor(sp *ServiceProvider, globals *Globals, clientLogin string) (*direct.Client, error) {
	b, err := sp.Broker()
	if err != nil {
		return nil, err
	}
	cfg, _ := sp.Config()
	return b.Client(globals.IdentityOr(cfg.DefaultIdentity), clientLogin)
}

// readDocument takes a JSON object from an inline flag or a file. Neither
// yields an empty object.
func readDocument(name, inline, file string, stdin io.Reader) (direct.Document, error) {
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from stdin: %w", name, err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, output.NewCLIError(output.ExitUsage, fmt.Sprintf("Failed to read %s file: %v", name, err))
		}
		data = b
	default:
		return direct.Document("{}"), nil
	}

	doc, err := direct.ParseDocument(data)
	if err != nil {
		return nil, output.NewCLIError(output.ExitUsage, fmt.Sprintf("Invalid %s: %v", name, err))
	}
	if s := doc.String(); s == "" || s[0] != '{' {
		return nil, output.NewCLIError(output.ExitUsage, fmt.Sprintf("Invalid %s: must be a JSON object", name))
	}
	return doc, nil
}
