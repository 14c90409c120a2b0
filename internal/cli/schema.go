package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/semmy-space/dirctl/internal/output"
	"github.com/semmy-space/dirctl/internal/tools"
)

// SchemaCmd prints the command tree, or the tools served by "dirctl serve", as JSON
type SchemaCmd struct {
	Command string `arg:"" optional:"" help:"Command path to describe (e.g. 'auth login')"`
	Tools   bool   `help:"Describe the tools of the tool server instead of the commands"`
}

// CommandSchema describes one node of the command tree
type CommandSchema struct {
	Name     string           `json:"name"`
	Kind     string           `json:"kind"`
	Help     string           `json:"help,omitempty"`
	Aliases  []string         `json:"aliases,omitempty"`
	Flags    []FlagSchema     `json:"flags,omitempty"`
	Args     []ArgSchema      `json:"args,omitempty"`
	Commands []*CommandSchema `json:"commands,omitempty"`
}

// FlagSchema describes a flag. Exclusive lists the xor groups it belongs to.
type FlagSchema struct {
	Name      string   `json:"name"`
	Short     string   `json:"short,omitempty"`
	Help      string   `json:"help,omitempty"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Default   string   `json:"default,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Env       []string `json:"env,omitempty"`
	Exclusive []string `json:"exclusive,omitempty"`
}

// ArgSchema describes a positional argument
type ArgSchema struct {
	Name     string `json:"name"`
	Help     string `json:"help,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Run executes the schema command
func (cmd *SchemaCmd) Run(kctx *kong.Context) error {
	if cmd.Tools {
		if cmd.Command != "" {
			return output.NewCLIError(output.ExitUsage, "--tools does not take a command path")
		}
		return writeSchema(kctx.Stdout, tools.Catalog())
	}

	node, err := findCommand(kctx.Model.Node, cmd.Command)
	if err != nil {
		return err
	}
	return writeSchema(kctx.Stdout, describeCommand(node))
}

func writeSchema(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describeCommand(node *kong.Node) *CommandSchema {
	schema := &CommandSchema{
		Name:    node.Name,
		Kind:    nodeKind(node.Type),
		Help:    node.Help,
		Aliases: node.Aliases,
	}

	for _, flag := range node.Flags {
		if flag.Hidden || flag.Name == "help" || flag.Name == "version" {
			continue
		}
		schema.Flags = append(schema.Flags, describeFlag(flag))
	}

	for _, arg := range node.Positional {
		schema.Args = append(schema.Args, ArgSchema{Name: arg.Name, Help: arg.Help, Required: arg.Required})
	}

	for _, child := range node.Children {
		if child.Hidden {
			continue
		}
		schema.Commands = append(schema.Commands, describeCommand(child))
	}

	return schema
}

func describeFlag(flag *kong.Flag) FlagSchema {
	fs := FlagSchema{
		Name:      flag.Name,
		Help:      flag.Help,
		Type:      "string",
		Required:  flag.Required,
		Default:   flag.Default,
		Env:       flag.Envs,
		Exclusive: flag.Xor,
	}
	if flag.Short != 0 {
		fs.Short = string(flag.Short)
	}
	if flag.Target.IsValid() {
		fs.Type = flag.Target.Type().String()
	}
	// An empty enum member means the flag may be left unset
	for _, v := range strings.Split(flag.Enum, ",") {
		if v != "" {
			fs.Enum = append(fs.Enum, v)
		}
	}
	return fs
}

// findCommand resolves a space separated command path such as "auth login"
func findCommand(root *kong.Node, path string) (*kong.Node, error) {
	current := root
	for _, part := range strings.Fields(path) {
		var next *kong.Node
		for _, child := range current.Children {
			if child.Name == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil, output.NewCLIError(output.ExitNotFound, fmt.Sprintf("Unknown command: %s", path))
		}
		current = next
	}
	return current, nil
}

func nodeKind(t kong.NodeType) string {
	switch t {
	case kong.ApplicationNode:
		return "application"
	case kong.CommandNode:
		return "command"
	case kong.ArgumentNode:
		return "argument"
	default:
		return "unknown"
	}
}
