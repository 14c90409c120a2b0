package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func newTestServer() *Server {
	s := NewServer("dirctl", "test")
	s.AddTool(Tool{Name: "echo", Description: "Echo arguments", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in map[string]any
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return in, nil
		})
	s.AddTool(Tool{Name: "text", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return "Id\tName\n1\tX\n", nil
		})
	s.AddTool(Tool{Name: "fail", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("credential not found")
		})
	s.AddTool(Tool{Name: "panic", InputSchema: json.RawMessage(`{"type":"object"}`)},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("boom")
		})
	return s
}

// exchange runs the server over the given input lines and returns responses keyed by id.
func exchange(t *testing.T, s *Server, lines ...string) map[string]rpcResponse {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))

	responses := map[string]rpcResponse{}
	dec := json.NewDecoder(&out)
	for {
		var resp rpcResponse
		err := dec.Decode(&resp)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "2.0", resp.JSONRPC)
		responses[string(resp.ID)] = resp
	}
	return responses
}

func callResult(t *testing.T, resp rpcResponse) CallResult {
	t.Helper()
	require.Nil(t, resp.Error)
	var res CallResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.Len(t, res.Content, 1)
	return res
}

func TestInitializeAndList(t *testing.T) {
	responses := exchange(t, newTestServer(),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":"p","method":"ping"}`,
	)
	require.Len(t, responses, 3, "notifications get no response")

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Tools map[string]any `json:"tools"`
		} `json:"capabilities"`
		ServerInfo struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(responses["1"].Result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.NotNil(t, init.Capabilities.Tools)
	assert.Equal(t, "dirctl", init.ServerInfo.Name)

	var list struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(responses["2"].Result, &list))
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"echo", "fail", "panic", "text"}, names)

	assert.JSONEq(t, `{}`, string(responses[`"p"`].Result))
}

func TestToolsCall(t *testing.T) {
	responses := exchange(t, newTestServer(),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"a":1}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"text","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"fail","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"panic"}}`,
	)

	echo := callResult(t, responses["1"])
	assert.False(t, echo.IsError)
	assert.Equal(t, "text", echo.Content[0].Type)
	assert.Equal(t, "{\n  \"a\": 1\n}", echo.Content[0].Text)

	text := callResult(t, responses["2"])
	assert.Equal(t, "Id\tName\n1\tX\n", text.Content[0].Text)

	failed := callResult(t, responses["3"])
	assert.True(t, failed.IsError)
	assert.Equal(t, "credential not found", failed.Content[0].Text)

	panicked := callResult(t, responses["4"])
	assert.True(t, panicked.IsError)
	assert.Contains(t, panicked.Content[0].Text, "boom")
}

func TestProtocolErrors(t *testing.T) {
	responses := exchange(t, newTestServer(),
		`{not json`,
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"missing"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{}}`,
	)

	tests := []struct {
		id   string
		code int
	}{
		{id: "null", code: CodeParseError},
		{id: "1", code: CodeInvalidRequest},
		{id: "2", code: CodeMethodNotFound},
		{id: "3", code: CodeInvalidParams},
		{id: "4", code: CodeInvalidParams},
	}
	for _, tt := range tests {
		resp, ok := responses[tt.id]
		require.True(t, ok, "no response for id %s", tt.id)
		require.NotNil(t, resp.Error, "id %s", tt.id)
		assert.Equal(t, tt.code, resp.Error.Code, "id %s", tt.id)
		assert.Empty(t, resp.Result, "id %s", tt.id)
	}
}

func TestSlowCallDoesNotBlockOthers(t *testing.T) {
	s := NewServer("dirctl", "test")
	release := make(chan struct{})
	s.AddTool(Tool{Name: "slow", InputSchema: json.RawMessage(`{}`)}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
			return nil, errors.New("not released")
		}
		return "slow done", nil
	})
	s.AddTool(Tool{Name: "fast", InputSchema: json.RawMessage(`{}`)}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		close(release)
		return "fast done", nil
	})

	responses := exchange(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"slow"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"fast"}}`,
	)

	assert.Equal(t, "slow done", callResult(t, responses["1"]).Content[0].Text)
	assert.Equal(t, "fast done", callResult(t, responses["2"]).Content[0].Text)
}

func TestServeStopsWhenContextIsCancelled(t *testing.T) {
	s := NewServer("dirctl", "test")
	started := make(chan struct{})
	s.AddTool(Tool{Name: "poll", InputSchema: json.RawMessage(`{}`)}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	stdin, client := io.Pipe()
	defer client.Close()

	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, stdin, &out) }()

	_, err := io.WriteString(client, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"poll"}}`+"\n")
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("tool call did not start")
	}
	cancel()

	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running after cancellation with stdin open")
	}

	var resp rpcResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "1", string(resp.ID))
	assert.True(t, callResult(t, resp).IsError, "the interrupted call is still answered")
}
