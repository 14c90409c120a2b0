package cli

import (
	"fmt"
	"os"

	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/output"
)

// secretKeys are masked by config list
var secretKeys = map[string]bool{
	"client_secret":  true,
	"encryption_key": true,
}

// ConfigGetCmd implements config get command
type ConfigGetCmd struct {
	Key string `arg:"" help:"Config key to get (e.g., environment, client_id)"`
}

// Run executes the get command
func (cmd *ConfigGetCmd) Run(cfg *config.Config, fp *FormatterProvider) error {
	value, err := cfg.Get(cmd.Key)
	if err != nil {
		return &output.CLIError{
			Message:  fmt.Sprintf("Unknown config key: %s", cmd.Key),
			ExitCode: output.ExitNotFound,
		}
	}

	fmt.Println(value)
	return nil
}

// ConfigSetCmd implements config set command
type ConfigSetCmd struct {
	Key   string `arg:"" help:"Config key to set"`
	Value string `arg:"" help:"Value to set"`
}

// Run executes the set command
func (cmd *ConfigSetCmd) Run(cfg *config.Config, fp *FormatterProvider) error {
	if _, err := cfg.Get(cmd.Key); err != nil {
		return &output.CLIError{
			Message:  fmt.Sprintf("Unknown config key: %s", cmd.Key),
			ExitCode: output.ExitUsage,
		}
	}

	if err := validateConfigValue(cmd.Key, cmd.Value); err != nil {
		return err
	}

	if secretKeys[cmd.Key] {
		fmt.Fprintf(os.Stderr, "Note: %s is stored in the config file in plain text. Prefer the environment or: dirctl auth keygen --keyring\n", cmd.Key)
	}

	if err := cfg.Set(cmd.Key, cmd.Value); err != nil {
		return &output.CLIError{
			Message:  fmt.Sprintf("Failed to set config: %v", err),
			ExitCode: output.ExitGeneral,
			Err:      err,
		}
	}

	fmt.Fprintf(os.Stderr, "Set %s = %s\n", cmd.Key, maskValue(cmd.Key, cmd.Value))
	return nil
}

// validateConfigValue rejects values the config would refuse at startup
func validateConfigValue(key, value string) error {
	usage := func(msg string) error {
		return &output.CLIError{Message: msg, ExitCode: output.ExitUsage}
	}

	switch key {
	case "environment":
		if _, err := config.GetEnvironment(value); err != nil {
			return usage(err.Error())
		}
	case "key_source":
		if value != config.KeySourceEnv && value != config.KeySourceKeyring {
			return usage(fmt.Sprintf("Invalid key_source: %s. Valid: %s, %s", value, config.KeySourceEnv, config.KeySourceKeyring))
		}
	case "encryption_key":
		if _, err := config.DecodeKey(value); err != nil {
			return usage(err.Error())
		}
	case "default_output":
		switch value {
		case "json", "plain", "rich", "auto":
		default:
			return usage(fmt.Sprintf("Invalid default_output: %s. Valid: json, plain, rich, auto", value))
		}
	case "default_identity":
		if len([]rune(value)) < 6 {
			return usage("default_identity must be at least 6 characters")
		}
	}
	return nil
}

// ConfigUnsetCmd implements config unset command
type ConfigUnsetCmd struct {
	Key string `arg:"" help:"Config key to remove"`
}

// Run executes the unset command
func (cmd *ConfigUnsetCmd) Run(cfg *config.Config, fp *FormatterProvider) error {
	if _, err := cfg.Get(cmd.Key); err != nil {
		return &output.CLIError{
			Message:  fmt.Sprintf("Unknown config key: %s", cmd.Key),
			ExitCode: output.ExitUsage,
		}
	}

	if err := cfg.Unset(cmd.Key); err != nil {
		return &output.CLIError{
			Message:  fmt.Sprintf("Failed to unset config: %v", err),
			ExitCode: output.ExitGeneral,
			Err:      err,
		}
	}

	fmt.Fprintf(os.Stderr, "Unset %s\n", cmd.Key)
	return nil
}

// ConfigListConfigCmd implements config list command
type ConfigListConfigCmd struct {
	Effective bool `help:"Show values after the environment and defaults are applied"`
}

// Run executes the list command
func (cmd *ConfigListConfigCmd) Run(cfg *config.Config, sp *ServiceProvider, fp *FormatterProvider) error {
	shown := cfg
	if cmd.Effective {
		effective, err := sp.Config()
		if err != nil {
			return err
		}
		shown = effective
	}

	type ConfigItem struct {
		Key   string
		Value string
	}

	var items []ConfigItem
	for _, key := range shown.Keys() {
		value, _ := shown.Get(key)
		if value == "0" {
			value = ""
		}
		items = append(items, ConfigItem{Key: key, Value: maskValue(key, value)})
	}

	cols := []output.Column{
		{Name: "Key", Key: "Key"},
		{Name: "Value", Key: "Value", Width: 60},
	}

	return fp.Formatter.PrintList(items, cols)
}

func maskValue(key, value string) string {
	if secretKeys[key] {
		return maskSecret(value)
	}
	return value
}

// maskSecret masks sensitive values, showing only last 4 characters
func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// ConfigPathCmd implements config path command
type ConfigPathCmd struct{}

// Run executes the path command
func (cmd *ConfigPathCmd) Run(cfg *config.Config, fp *FormatterProvider) error {
	path := cfg.Path()

	fmt.Println(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "(file does not exist yet - will be created on first write)\n")
	} else {
		fmt.Fprintf(os.Stderr, "(file exists)\n")
	}

	return nil
}
