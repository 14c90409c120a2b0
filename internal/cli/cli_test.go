package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/mcp"
	"github.com/semmy-space/dirctl/internal/output"
)

func newTestParser(t *testing.T) *kong.Kong {
	t.Helper()
	parser, err := kong.New(&CLI{}, kong.Name("dirctl"), kong.Vars{"version": "test"}, kong.Exit(func(int) {}))
	require.NoError(t, err)
	return parser
}

func TestCommandTree(t *testing.T) {
	root := describeCommand(newTestParser(t).Model.Node)
	assert.Equal(t, "application", root.Kind)

	var commands []string
	for _, child := range root.Commands {
		commands = append(commands, child.Name)
	}
	for _, want := range []string{"serve", "auth", "call", "report", "config", "schema", "version", "completion"} {
		assert.Contains(t, commands, want)
	}

	report, err := findCommand(newTestParser(t).Model.Node, "report")
	require.NoError(t, err)
	flags := map[string]FlagSchema{}
	for _, f := range describeCommand(report).Flags {
		flags[f.Name] = f
	}
	for _, want := range []string{"definition", "definition-file", "money-in-micros", "max-retries", "processing-mode", "skip-report-header", "skip-column-header", "skip-report-summary", "client-login"} {
		assert.Contains(t, flags, want)
	}
	assert.Equal(t, []string{"auto", "online", "offline"}, flags["processing-mode"].Enum)
	assert.Equal(t, "int", flags["max-retries"].Type)
	assert.Equal(t, []string{"definition"}, flags["definition-file"].Exclusive)
	assert.Equal(t, []string{"DIRCTL_CLIENT_LOGIN"}, flags["client-login"].Env)

	login, err := findCommand(newTestParser(t).Model.Node, "auth login")
	require.NoError(t, err)
	assert.Equal(t, "login", login.Name)

	_, err = findCommand(newTestParser(t).Model.Node, "admin users")
	var cliErr *output.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, output.ExitNotFound, cliErr.ExitCode)
}

func TestSchemaTools(t *testing.T) {
	var out bytes.Buffer
	parser, err := kong.New(&CLI{}, kong.Name("dirctl"), kong.Vars{"version": "test"}, kong.Writers(&out, &bytes.Buffer{}))
	require.NoError(t, err)
	kctx := &kong.Context{Kong: parser}

	require.NoError(t, (&SchemaCmd{Tools: true}).Run(kctx))

	var catalog []struct {
		Name        string          `json:"name"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &catalog))
	require.Len(t, catalog, 10)
	assert.Equal(t, "attach_token", catalog[0].Name)
	assert.NotEmpty(t, catalog[0].InputSchema)

	err = (&SchemaCmd{Tools: true, Command: "auth"}).Run(kctx)
	var cliErr *output.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, output.ExitUsage, cliErr.ExitCode)

	out.Reset()
	require.NoError(t, (&SchemaCmd{Command: "auth keygen"}).Run(kctx))
	var node CommandSchema
	require.NoError(t, json.Unmarshal(out.Bytes(), &node))
	assert.Equal(t, "keygen", node.Name)
	assert.Equal(t, "command", node.Kind)
}

func TestReadDocument(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"SelectionCriteria":{},"FieldNames":["Id"]}`), 0600))

	tests := []struct {
		name    string
		inline  string
		file    string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "inline", inline: `{"a":1}`, want: `{"a":1}`},
		{name: "file", file: file, want: `{"SelectionCriteria":{},"FieldNames":["Id"]}`},
		{name: "stdin", file: "-", stdin: " {\"b\":2}\n", want: `{"b":2}`},
		{name: "nothing", want: `{}`},
		{name: "not json", inline: `{a:1}`, wantErr: true},
		{name: "not an object", inline: `[1]`, wantErr: true},
		{name: "missing file", file: filepath.Join(t.TempDir(), "missing.json"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := readDocument("params", tt.inline, tt.file, strings.NewReader(tt.stdin))
			if tt.wantErr {
				var cliErr *output.CLIError
				require.ErrorAs(t, err, &cliErr)
				assert.Equal(t, output.ExitUsage, cliErr.ExitCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.String())
		})
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "empty", value: "", expected: ""},
		{name: "short", value: "abc", expected: "****"},
		{name: "exactly 4", value: "abcd", expected: "****"},
		{name: "long", value: "my-secret-value", expected: "****alue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskSecret(tt.value))
		})
	}

	assert.Equal(t, "****cret", maskValue("client_secret", "top-secret"))
	assert.Equal(t, "sandbox", maskValue("environment", "sandbox"))
}

func TestValidateConfigValue(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, config.EncryptionKeySize))

	valid := map[string]string{
		"environment":      "sandbox",
		"key_source":       "keyring",
		"encryption_key":   key,
		"default_output":   "json",
		"default_identity": "agency-main",
		"client_id":        "anything",
	}
	for k, v := range valid {
		assert.NoError(t, validateConfigValue(k, v), k)
	}

	invalid := map[string]string{
		"environment":      "moon",
		"key_source":       "vault",
		"encryption_key":   base64.StdEncoding.EncodeToString([]byte("short")),
		"default_output":   "xml",
		"default_identity": "abc",
	}
	for k, v := range invalid {
		err := validateConfigValue(k, v)
		var cliErr *output.CLIError
		require.ErrorAs(t, err, &cliErr, k)
		assert.Equal(t, output.ExitUsage, cliErr.ExitCode, k)
	}
}

func TestGlobals(t *testing.T) {
	g := &Globals{Output: "json"}
	assert.Equal(t, "json", g.ResolvedOutput("rich"))

	g.Output = "auto"
	assert.Equal(t, "plain", g.ResolvedOutput("plain"))

	assert.Equal(t, "default", g.IdentityOr("default"))
	g.Identity = "agency-main"
	assert.Equal(t, "agency-main", g.IdentityOr("default"))
}

func newTestProvider(t *testing.T, file *config.Config, env map[string]string) *ServiceProvider {
	t.Helper()
	sp := NewServiceProvider(file)
	sp.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	return sp
}

func TestServiceProviderConfig(t *testing.T) {
	file := &config.Config{ClientID: "from-file", Environment: "sandbox"}
	sp := newTestProvider(t, file, map[string]string{
		"YANDEX_CLIENT_ID":    "from-env",
		"OAUTH_CALLBACK_PORT": "9000",
	})

	cfg, err := sp.Config()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ClientID)
	assert.Equal(t, 9000, cfg.CallbackPort)
	assert.Equal(t, "sandbox", cfg.Environment)
	assert.Equal(t, config.DefaultIdentity, cfg.DefaultIdentity)

	assert.Equal(t, "from-file", file.ClientID, "the file config is left untouched")
	assert.Zero(t, file.CallbackPort)
}

func TestServiceProviderRejectsBadKey(t *testing.T) {
	sp := newTestProvider(t, &config.Config{}, map[string]string{
		"TOKEN_ENCRYPTION_KEY_BASE64": base64.StdEncoding.EncodeToString([]byte("too short")),
	})

	_, err := sp.Broker()

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "encryption_key", cfgErr.Field)
}

func TestServiceProviderBroker(t *testing.T) {
	store := filepath.Join(t.TempDir(), "data", "tokens.json")
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, config.EncryptionKeySize))
	sp := newTestProvider(t, &config.Config{StorePath: store}, map[string]string{
		"TOKEN_ENCRYPTION_KEY_BASE64": key,
	})

	b, err := sp.Broker()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	again, err := sp.Broker()
	require.NoError(t, err)
	assert.Same(t, b, again)

	assert.True(t, b.Vault().Encrypted())
	assert.Equal(t, store, b.Vault().Path())

	globals := &Globals{Identity: "agency-main"}
	require.NoError(t, (&AuthAttachCmd{Token: "y0_attached-token", Login: "agency"}).Run(sp, nil, globals))
	require.NoError(t, (&AuthActivateCmd{}).Run(sp, globals))

	var out bytes.Buffer
	fp := &FormatterProvider{Formatter: output.NewWithWriters("plain", &out, &bytes.Buffer{})}
	require.NoError(t, (&AuthListCmd{}).Run(sp, fp))
	assert.Contains(t, out.String(), "agency-main\tagency\tYes\t")
	assert.NotContains(t, out.String(), "y0_attached-token")

	client, err := clientFor(sp, globals, "")
	require.NoError(t, err)
	assert.Equal(t, "agency", client.Login())

	data, err := os.ReadFile(store)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "y0_attached-token")
}

func TestServeReportsConfigErrors(t *testing.T) {
	sp := newTestProvider(t, &config.Config{}, map[string]string{
		"OAUTH_CALLBACK_PORT": "eighty",
	})

	err := (&ServeCmd{}).Run(context.Background(), nil, sp)

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "OAUTH_CALLBACK_PORT", cfgErr.Field)
}

func TestServeStopsCleanlyOnCancel(t *testing.T) {
	stdin, client := io.Pipe()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	assert.NoError(t, serve(ctx, mcp.NewServer("dirctl", "test"), stdin, &out))
	assert.Empty(t, out.String())
}
