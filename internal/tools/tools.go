// Package tools exposes the broker and the Direct API client as tools of the
// tool server.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/semmy-space/dirctl/internal/auth"
	"github.com/semmy-space/dirctl/internal/broker"
	"github.com/semmy-space/dirctl/internal/direct"
	"github.com/semmy-space/dirctl/internal/logging"
	"github.com/semmy-space/dirctl/internal/mcp"
)

const (
	DefaultPageLimit     = 1000
	MaxPageLimit         = 10000
	DefaultReportRetries = direct.DefaultReportRetries
	MaxReportRetries     = 20
)

// ArgumentError reports an invalid tool argument.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

type entity struct {
	tool        string
	service     string
	description string
	fields      []string
}

var entities = []entity{
	{tool: "list_campaigns", service: "campaigns", description: "List campaigns (campaigns.get) with SelectionCriteria, FieldNames and Page", fields: []string{"Id", "Name", "Status"}},
	{tool: "list_adgroups", service: "adgroups", description: "List ad groups (adgroups.get)", fields: []string{"Id", "Name", "CampaignId", "Status"}},
	{tool: "list_ads", service: "ads", description: "List ads (ads.get)", fields: []string{"Id", "AdGroupId", "CampaignId", "Status"}},
	{tool: "list_keywords", service: "keywords", description: "List keywords (keywords.get)", fields: []string{"Id", "AdGroupId", "CampaignId", "State", "Keyword"}},
}

// Handlers implements the tools over a broker.
type Handlers struct {
	broker          *broker.Broker
	defaultIdentity string
}

// Register adds every tool to srv. defaultIdentity is used when a call
// omits secretCode.
func Register(srv *mcp.Server, b *broker.Broker, defaultIdentity string) *Handlers {
	h := &Handlers{broker: b, defaultIdentity: defaultIdentity}

	srv.AddTool(mcp.Tool{
		Name:        "start_oauth",
		Description: "Start the Yandex OAuth flow and bind the resulting token to secretCode. Returns the URL to open.",
		InputSchema: startOAuthSchema,
	}, h.StartOAuth)
	srv.AddTool(mcp.Tool{
		Name:        "attach_token",
		Description: "Bind an already issued OAuth token to secretCode and make it active",
		InputSchema: attachTokenSchema,
	}, h.AttachToken)
	srv.AddTool(mcp.Tool{
		Name:        "set_active_token",
		Description: "Make the stored token of secretCode active for the following calls",
		InputSchema: setActiveTokenSchema,
	}, h.SetActiveToken)
	srv.AddTool(mcp.Tool{
		Name:        "list_credentials",
		Description: "List stored credentials without their tokens",
		InputSchema: listCredentialsSchema,
	}, h.ListCredentials)

	for _, e := range entities {
		srv.AddTool(mcp.Tool{Name: e.tool, Description: e.description, InputSchema: listSchema(e.fields)}, h.list(e))
	}

	srv.AddTool(mcp.Tool{
		Name:        "get_report",
		Description: "Build a report from a ReportDefinition and return it as TSV, waiting while it is prepared offline",
		InputSchema: reportSchema,
	}, h.GetReport)
	srv.AddTool(mcp.Tool{
		Name:        "call_service",
		Description: "Call any API v5 service method with raw params",
		InputSchema: callServiceSchema,
	}, h.CallService)

	return h
}

// Catalog returns the tool definitions without binding them to a broker.
func Catalog() []mcp.Tool {
	srv := mcp.NewServer("", "")
	Register(srv, nil, "")
	return srv.Tools()
}

type target struct {
	SecretCode  string `json:"secretCode"`
	ClientLogin string `json:"clientLogin"`
}

func (h *Handlers) identity(secretCode string) string {
	if secretCode == "" {
		return h.defaultIdentity
	}
	return secretCode
}

func (h *Handlers) client(t target) (*direct.Client, error) {
	return h.broker.Client(h.identity(t.SecretCode), t.ClientLogin)
}

// StartOAuth begins a login and returns the authorization URL. The token is
// attached when the redirect reaches the callback listener.
func (h *Handlers) StartOAuth(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		SecretCode string `json:"secretCode"`
		Scope      string `json:"scope"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Scope == "" {
		args.Scope = auth.DefaultScope
	}

	login, err := h.broker.StartLogin(ctx, h.identity(args.SecretCode), args.Scope)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"authorizeUrl": login.URL,
		"state":        login.State,
		"note":         "Open the URL, sign in and wait for the confirmation page.",
	}, nil
}

// AttachToken stores a token and makes it active.
func (h *Handlers) AttachToken(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		SecretCode string  `json:"secretCode"`
		OAuthToken string  `json:"oauthToken"`
		Login      *string `json:"login"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	var login string
	if args.Login != nil {
		login = *args.Login
	}
	if err := h.broker.Attach(h.identity(args.SecretCode), args.OAuthToken, login); err != nil {
		return nil, err
	}

	return map[string]any{"attached": true, "login": args.Login}, nil
}

// SetActiveToken activates the stored token of an identity.
func (h *Handlers) SetActiveToken(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		SecretCode string `json:"secretCode"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := h.broker.Activate(h.identity(args.SecretCode)); err != nil {
		return nil, err
	}
	return map[string]any{"active": true}, nil
}

// ListCredentials lists stored credentials.
func (h *Handlers) ListCredentials(ctx context.Context, raw json.RawMessage) (any, error) {
	return map[string]any{"credentials": h.broker.Credentials()}, nil
}

type page struct {
	Limit  *int `json:"Limit"`
	Offset *int `json:"Offset"`
}

type listParams struct {
	SelectionCriteria direct.Document `json:"SelectionCriteria"`
	FieldNames        []string        `json:"FieldNames"`
	Page              pageParams      `json:"Page"`
}

type pageParams struct {
	Limit  int `json:"Limit"`
	Offset int `json:"Offset"`
}

func (h *Handlers) list(e entity) mcp.ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			target
			SelectionCriteria direct.Document `json:"selectionCriteria"`
			FieldNames        []string        `json:"fieldNames"`
			Page              *page           `json:"page"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}

		params := listParams{
			FieldNames: args.FieldNames,
			Page:       pageParams{Limit: DefaultPageLimit},
		}

		var err error
		if params.SelectionCriteria, err = objectOrEmpty("selectionCriteria", args.SelectionCriteria); err != nil {
			return nil, err
		}
		if params.FieldNames == nil {
			params.FieldNames = e.fields
		}
		if args.Page != nil {
			if args.Page.Limit != nil {
				params.Page.Limit = *args.Page.Limit
			}
			if args.Page.Offset != nil {
				params.Page.Offset = *args.Page.Offset
			}
		}
		if params.Page.Limit < 1 || params.Page.Limit > MaxPageLimit {
			return nil, &ArgumentError{Field: "page.Limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxPageLimit)}
		}
		if params.Page.Offset < 0 {
			return nil, &ArgumentError{Field: "page.Offset", Reason: "must not be negative"}
		}

		c, err := h.client(args.target)
		if err != nil {
			return nil, err
		}
		return c.Invoke(ctx, e.service, "get", direct.MustDocument(params))
	}
}

// GetReport fetches a report as TSV.
func (h *Handlers) GetReport(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		target
		ReportDefinition    direct.Document `json:"reportDefinition"`
		ReturnMoneyInMicros bool            `json:"returnMoneyInMicros"`
		MaxRetries          *int            `json:"maxRetries"`
		ProcessingMode      string          `json:"processingMode"`
		SkipReportHeader    bool            `json:"skipReportHeader"`
		SkipColumnHeader    bool            `json:"skipColumnHeader"`
		SkipReportSummary   bool            `json:"skipReportSummary"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	if !isObject(args.ReportDefinition) {
		return nil, &ArgumentError{Field: "reportDefinition", Reason: "must be an object"}
	}
	maxRetries := DefaultReportRetries
	if args.MaxRetries != nil {
		maxRetries = *args.MaxRetries
	}
	if maxRetries < 1 || maxRetries > MaxReportRetries {
		return nil, &ArgumentError{Field: "maxRetries", Reason: fmt.Sprintf("must be between 1 and %d", MaxReportRetries)}
	}
	switch args.ProcessingMode {
	case "", "auto", "online", "offline":
	default:
		return nil, &ArgumentError{Field: "processingMode", Reason: "must be auto, online or offline"}
	}

	c, err := h.client(args.target)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Debug("fetching report", "login", c.Login(), "maxRetries", maxRetries)
	return c.FetchReport(ctx, args.ReportDefinition, direct.ReportOptions{
		ReturnMoneyInMicros: args.ReturnMoneyInMicros,
		MaxRetries:          maxRetries,
		ProcessingMode:      args.ProcessingMode,
		SkipReportHeader:    args.SkipReportHeader,
		SkipColumnHeader:    args.SkipColumnHeader,
		SkipReportSummary:   args.SkipReportSummary,
	})
}

// CallService invokes any service method with the params passed through.
func (h *Handlers) CallService(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		target
		Service string          `json:"service"`
		Method  string          `json:"method"`
		Params  direct.Document `json:"params"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	if args.Service == "" {
		return nil, &ArgumentError{Field: "service", Reason: "required"}
	}
	if args.Method == "" {
		return nil, &ArgumentError{Field: "method", Reason: "required"}
	}
	if !isObject(args.Params) {
		return nil, &ArgumentError{Field: "params", Reason: "must be an object"}
	}

	c, err := h.client(args.target)
	if err != nil {
		return nil, err
	}
	return c.Invoke(ctx, args.Service, args.Method, args.Params)
}

// decodeArgs treats missing arguments as an empty object.
func decodeArgs(raw json.RawMessage, v any) error {
	if direct.Document(raw).IsNull() {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ArgumentError{Field: "arguments", Reason: err.Error()}
	}
	return nil
}

func isObject(d direct.Document) bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func objectOrEmpty(field string, d direct.Document) (direct.Document, error) {
	if d.IsNull() {
		return direct.Document("{}"), nil
	}
	if !isObject(d) {
		return nil, &ArgumentError{Field: field, Reason: "must be an object"}
	}
	return d, nil
}
