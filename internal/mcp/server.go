// Package mcp serves tools over the Model Context Protocol: JSON-RPC 2.0
// messages, one per line, on a reader/writer pair (stdin and stdout).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/semmy-space/dirctl/internal/logging"
)

const (
	JSONRPCVersion  = "2.0"
	ProtocolVersion = "2024-11-05"

	// DefaultMaxInFlight bounds concurrent tools/call requests.
	DefaultMaxInFlight = 8

	maxMessageSize = 16 << 20
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ToolHandler runs a tool. The returned value becomes the text content of the
// result: strings verbatim, anything else as indented JSON. An error becomes
// a result flagged isError.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool describes a tool in tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result of tools/call.
type CallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func reply(id json.RawMessage, result any, rpcErr *RPCError) response {
	if rpcErr != nil {
		return response{ID: id, Error: rpcErr}
	}
	if result == nil {
		result = map[string]any{}
	}
	return response{ID: id, Result: result}
}

type registered struct {
	tool    Tool
	handler ToolHandler
}

// Server dispatches JSON-RPC requests to registered tools.
type Server struct {
	name        string
	version     string
	maxInFlight int

	mu    sync.RWMutex
	tools map[string]registered
}

// NewServer creates a server that introduces itself as name and version.
func NewServer(name, version string) *Server {
	return &Server{
		name:        name,
		version:     version,
		maxInFlight: DefaultMaxInFlight,
		tools:       make(map[string]registered),
	}
}

// SetMaxInFlight bounds the number of tool calls running at once.
func (s *Server) SetMaxInFlight(n int) {
	if n > 0 {
		s.maxInFlight = n
	}
}

// AddTool registers a tool, replacing any tool with the same name.
func (s *Server) AddTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[tool.Name] = registered{tool: tool, handler: handler}
}

// Tools returns the registered tools sorted by name.
func (s *Server) Tools() []Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]Tool, 0, len(s.tools))
	for _, r := range s.tools {
		tools = append(tools, r.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Serve reads requests from r until it is exhausted or ctx is done, and writes
// responses to w. Each tools/call runs in its own goroutine, so a long report
// poll does not hold up other requests. Serve waits for running calls before
// returning, and returns ctx.Err() when stopped by ctx.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	logger := logging.FromContext(ctx)
	out := &writer{enc: json.NewEncoder(w)}

	done := make(chan struct{})
	defer close(done)
	lines, readErr := readLines(r, done)

	var calls errgroup.Group
	calls.SetLimit(s.maxInFlight)

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Debug("tool server stopping", "reason", ctx.Err())
			err = ctx.Err()
			break loop
		case line, ok := <-lines:
			if !ok {
				if rerr := <-readErr; rerr != nil {
					err = fmt.Errorf("read request: %w", rerr)
				} else {
					logger.Debug("tool server input closed")
				}
				break loop
			}
			s.dispatch(ctx, &calls, out, line)
		}
	}

	_ = calls.Wait()
	if err == nil {
		err = out.err
	}
	return err
}

// readLines scans r in its own goroutine, since a read on stdin cannot be
// interrupted. The goroutine stops sending once done is closed. readErr
// receives the scanner error before lines is closed.
func readLines(r io.Reader, done <-chan struct{}) (<-chan []byte, <-chan error) {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr
}

func (s *Server) dispatch(ctx context.Context, calls *errgroup.Group, out *writer, line []byte) {
	if len(line) == 0 {
		return
	}

	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		out.write(response{ID: json.RawMessage("null"), Error: &RPCError{Code: CodeParseError, Message: "parse error: " + err.Error()}})
		return
	}

	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		if !req.isNotification() {
			out.write(response{ID: req.ID, Error: &RPCError{Code: CodeInvalidRequest, Message: "invalid request"}})
		}
		return
	}

	if req.Method == "tools/call" && !req.isNotification() {
		calls.Go(func() error {
			result, rpcErr := s.callTool(ctx, req.Params)
			out.write(reply(req.ID, result, rpcErr))
			return nil
		})
		return
	}

	result, rpcErr := s.handle(ctx, &req)
	if req.isNotification() {
		return
	}
	out.write(reply(req.ID, result, rpcErr))
}

func (s *Server) handle(ctx context.Context, req *request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]string{"name": s.name, "version": s.version},
		}, nil
	case "notifications/initialized", "notifications/cancelled":
		return nil, nil
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": s.Tools()}, nil
	case "tools/call":
		return s.callTool(ctx, req.Params)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (result *CallResult, rpcErr *RPCError) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil || call.Name == "" {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "tools/call requires a tool name"}
	}

	s.mu.RLock()
	reg, ok := s.tools[call.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, &RPCError{Code: CodeInvalidParams, Message: "unknown tool: " + call.Name}
	}

	logger := logging.FromContext(ctx).With("tool", call.Name)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool panicked", "panic", p)
			result, rpcErr = ErrorResult(fmt.Errorf("internal error: %v", p)), nil
		}
	}()

	value, err := reg.handler(logging.NewContext(ctx, logger), call.Arguments)
	if err != nil {
		logger.Warn("tool failed", "error", err)
		return ErrorResult(err), nil
	}

	res, err := TextResult(value)
	if err != nil {
		return ErrorResult(err), nil
	}
	return res, nil
}

// TextResult renders v as a single text content item.
func TextResult(v any) (*CallResult, error) {
	text, ok := v.(string)
	if !ok {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		text = string(data)
	}
	return &CallResult{Content: []Content{{Type: "text", Text: text}}}, nil
}

// ErrorResult reports err as a failed tool call.
func ErrorResult(err error) *CallResult {
	return &CallResult{Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true}
}

// writer serializes responses onto one stream.
type writer struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func (w *writer) write(resp response) {
	resp.JSONRPC = JSONRPCVersion

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if err := w.enc.Encode(resp); err != nil {
		w.err = fmt.Errorf("write response: %w", err)
	}
}
