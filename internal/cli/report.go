package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/semmy-space/dirctl/internal/direct"
	"github.com/semmy-space/dirctl/internal/output"
)

// ReportCmd implements the report command
type ReportCmd struct {
	Definition        string `help:"ReportDefinition as a JSON object" xor:"definition" required:""`
	DefinitionFile    string `help:"Read the ReportDefinition from a JSON file ('-' for stdin)" predictor:"file" xor:"definition" required:""`
	ClientLogin       string `help:"Advertiser login sent as Client-Login; defaults to the stored login" env:"DIRCTL_CLIENT_LOGIN"`
	MoneyInMicros     bool   `help:"Return money amounts in micros" name:"money-in-micros"`
	MaxRetries        int    `help:"Attempts before giving up on a report that is still being built" default:"5"`
	ProcessingMode    string `help:"Report processing mode" enum:",auto,online,offline" default:""`
	SkipReportHeader  bool   `help:"Omit the report name line"`
	SkipColumnHeader  bool   `help:"Omit the column names line"`
	SkipReportSummary bool   `help:"Omit the totals line"`
	Out               string `help:"Write the TSV to a file instead of stdout" short:"O" type:"path"`
}

// Run executes the report command
func (cmd *ReportCmd) Run(ctx context.Context, sp *ServiceProvider, fp *FormatterProvider, globals *Globals) error {
	if cmd.MaxRetries < 1 || cmd.MaxRetries > 20 {
		return output.NewCLIError(output.ExitUsage, "--max-retries must be between 1 and 20")
	}

	definition, err := readDocument("definition", cmd.Definition, cmd.DefinitionFile, os.Stdin)
	if err != nil {
		return err
	}

	client, err := clientFor(sp, globals, cmd.ClientLogin)
	if err != nil {
		return err
	}

	tsv, err := client.FetchReport(ctx, definition, direct.ReportOptions{
		ReturnMoneyInMicros: cmd.MoneyInMicros,
		MaxRetries:          cmd.MaxRetries,
		ProcessingMode:      cmd.ProcessingMode,
		SkipReportHeader:    cmd.SkipReportHeader,
		SkipColumnHeader:    cmd.SkipColumnHeader,
		SkipReportSummary:   cmd.SkipReportSummary,
	})
	if err != nil {
		return err
	}

	if cmd.Out != "" {
		if err := os.WriteFile(cmd.Out, []byte(tsv), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", cmd.Out)
		return nil
	}
	return fp.Formatter.PrintText(tsv)
}
