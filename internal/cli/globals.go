package cli

import (
	"os"

	"golang.org/x/term"
)

// Globals holds global flags available to all commands
type Globals struct {
	Output      string `help:"Output format" default:"auto" enum:"json,plain,rich,auto" short:"o" env:"DIRCTL_OUTPUT"`
	Verbose     bool   `help:"Verbose output" short:"v" env:"DIRCTL_VERBOSE"`
	ResultsOnly bool   `help:"Strip JSON envelope, return data array only" env:"DIRCTL_RESULTS_ONLY"`
	Identity    string `help:"Identity (secret code) the token is stored under; defaults to default_identity" short:"i" env:"DIRCTL_IDENTITY"`
}

// ResolvedOutput returns the effective output mode.
// "auto" uses the configured default, then detects TTY: rich on a terminal, plain otherwise.
func (g *Globals) ResolvedOutput(configured string) string {
	if g.Output != "auto" && g.Output != "" {
		return g.Output
	}
	if configured != "" && configured != "auto" {
		return configured
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return "rich"
	}

	return "plain"
}

// IdentityOr returns the --identity flag, or fallback when it is unset.
func (g *Globals) IdentityOr(fallback string) string {
	if g.Identity != "" {
		return g.Identity
	}
	return fallback
}
