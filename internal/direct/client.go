// Package direct calls the Yandex Direct API v5: JSON service methods and the
// asynchronous report service.
package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/semmy-space/dirctl/internal/config"
	"github.com/semmy-space/dirctl/internal/logging"
)

const (
	// DefaultReportRetries bounds report attempts when ReportOptions.MaxRetries is unset.
	DefaultReportRetries = 5

	// DefaultRetryIn is the poll delay used when a pending report carries no usable retryIn header.
	DefaultRetryIn = 30 * time.Second

	// MaxServerErrorDelay caps the wait after a 5xx report response.
	MaxServerErrorDelay = time.Minute

	defaultTimeout = 60 * time.Second
	reportService  = "reports"
)

// Client is bound to one token and one client login.
type Client struct {
	endpoints config.Endpoints
	http      *http.Client
	login     string
	language  string
	newTimer  func() backoff.Timer
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	base     *http.Client
	language string
	newTimer func() backoff.Timer
}

// WithHTTPClient sets the client whose transport and timeout are used.
// The bearer token is added on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		if hc != nil {
			o.base = hc
		}
	}
}

// WithLanguage sets the Accept-Language header.
func WithLanguage(lang string) Option {
	return func(o *clientOptions) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithTimer sets the timer factory for report poll waits.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(o *clientOptions) {
		o.newTimer = newTimer
	}
}

// NewClient creates a client for endpoints. Every request is authorized by ts
// and carries login in the Client-Login header when login is not empty.
func NewClient(endpoints config.Endpoints, ts oauth2.TokenSource, login string, opts ...Option) *Client {
	o := clientOptions{
		base:     &http.Client{Timeout: defaultTimeout},
		language: config.DefaultAcceptLanguage,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		endpoints: endpoints,
		http: &http.Client{
			Timeout:   o.base.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: o.base.Transport},
		},
		login:    login,
		language: o.language,
		newTimer: o.newTimer,
	}
}

// Login returns the Client-Login value sent with every request.
func (c *Client) Login() string {
	return c.login
}

// Invoke calls method on service and returns the result member verbatim.
//
// A status other than 200 is a *TransportError. A 200 response whose body
// carries an error member is an *APIError.
func (c *Client) Invoke(ctx context.Context, service, method string, params Document) (Document, error) {
	if params.IsNull() {
		params = Document("{}")
	}
	payload, err := json.Marshal(struct {
		Method string   `json:"method"`
		Params Document `json:"params"`
	}{method, params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.post(ctx, service, payload, nil)
	if err != nil {
		return nil, &TransportError{Service: service, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Service: service, StatusCode: resp.StatusCode, Err: err}
	}

	logging.FromContext(ctx).Debug("service call",
		"service", service, "method", method, "status", resp.StatusCode, "request_id", resp.Header.Get("RequestId"))

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var envelope struct {
		Result Document        `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", service, err)
	}

	if len(envelope.Error) > 0 && !Document(envelope.Error).IsNull() {
		return nil, parseAPIError(service, resp.Header.Get("RequestId"), envelope.Error)
	}

	return envelope.Result, nil
}

func parseAPIError(service, requestID string, raw json.RawMessage) *APIError {
	apiErr := &APIError{Service: service, RequestID: requestID, Raw: Document(raw)}

	var body struct {
		RequestID   string      `json:"request_id"`
		ErrorCode   json.Number `json:"error_code"`
		ErrorString string      `json:"error_string"`
		ErrorDetail string      `json:"error_detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return apiErr
	}

	if body.RequestID != "" {
		apiErr.RequestID = body.RequestID
	}
	if code, err := strconv.Atoi(body.ErrorCode.String()); err == nil {
		apiErr.Code = code
	}
	apiErr.Message = body.ErrorString
	apiErr.Detail = body.ErrorDetail

	return apiErr
}

// ReportOptions are the report service headers and the poll bound.
type ReportOptions struct {
	ReturnMoneyInMicros bool
	// MaxRetries bounds the number of attempts, DefaultReportRetries when not positive.
	MaxRetries int
	// ProcessingMode is auto, online or offline. Empty leaves it to the server.
	ProcessingMode    string
	SkipReportHeader  bool
	SkipColumnHeader  bool
	SkipReportSummary bool
}

func (o ReportOptions) headers() http.Header {
	h := http.Header{}
	h.Set("returnMoneyInMicros", strconv.FormatBool(o.ReturnMoneyInMicros))
	if o.ProcessingMode != "" {
		h.Set("processingMode", o.ProcessingMode)
	}
	if o.SkipReportHeader {
		h.Set("skipReportHeader", "true")
	}
	if o.SkipColumnHeader {
		h.Set("skipColumnHeader", "true")
	}
	if o.SkipReportSummary {
		h.Set("skipReportSummary", "true")
	}
	return h
}

// FetchReport requests a report and polls until it is ready.
//
// 201 and 202 mean the report is still being built: the next attempt waits
// the number of seconds in the retryIn header. After a 5xx the wait doubles
// with the attempt number, one second after the first attempt and at most one
// minute. Both
// count towards MaxRetries, and no wait follows the last attempt. A 4xx or
// any other unexpected status fails at once with *ReportError, a transport
// failure with *TransportError, and running out of attempts with
// *ReportExhaustedError.
func (c *Client) FetchReport(ctx context.Context, definition Document, opts ReportOptions) (string, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultReportRetries
	}

	payload, err := json.Marshal(struct {
		Params Document `json:"params"`
	}{definition})
	if err != nil {
		return "", fmt.Errorf("encode report definition: %w", err)
	}

	logger := logging.FromContext(ctx)
	policy := newReportBackOff()
	headers := opts.headers()

	var attempts, lastStatus int
	operation := func() (string, error) {
		attempts++
		resp, err := c.post(ctx, reportService, payload, headers)
		if err != nil {
			return "", backoff.Permanent(&TransportError{Service: reportService, Err: err})
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", backoff.Permanent(&TransportError{Service: reportService, StatusCode: resp.StatusCode, Err: err})
		}
		lastStatus = resp.StatusCode

		switch status := resp.StatusCode; {
		case status == http.StatusOK:
			return string(body), nil
		case status == http.StatusCreated || status == http.StatusAccepted:
			policy.resumeAfter(retryIn(resp.Header))
			return "", &errReportPending{status: status}
		case status >= 500 && status <= 599:
			policy.resumeAfter(serverErrorDelay(attempts))
			return "", &ReportError{StatusCode: status, Body: string(body)}
		default:
			return "", backoff.Permanent(&ReportError{StatusCode: status, Body: string(body)})
		}
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug("report not ready", "attempt", attempts, "status", lastStatus, "wait", wait, "reason", err)
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries-1)), ctx)
	tsv, err := backoff.RetryNotifyWithTimerAndData(operation, b, notify, timer)
	if err == nil {
		return tsv, nil
	}

	switch err.(type) {
	case *errReportPending:
		return "", &ReportExhaustedError{Attempts: attempts, LastStatus: lastStatus}
	case *ReportError:
		if lastStatus >= 500 {
			return "", &ReportExhaustedError{Attempts: attempts, LastStatus: lastStatus}
		}
	}
	return "", err
}

func (c *Client) post(ctx context.Context, service string, payload []byte, extra http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.ServiceURL(service), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept-Language", c.language)
	if c.login != "" {
		req.Header.Set("Client-Login", c.login)
	}
	for name, values := range extra {
		req.Header[name] = values
	}

	return c.http.Do(req)
}

// retryIn reads the server's requested poll delay in seconds.
func retryIn(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("retryIn"))
	if v == "" {
		return DefaultRetryIn
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds <= 0 {
		return DefaultRetryIn
	}
	return time.Duration(seconds * float64(time.Second))
}

// serverErrorDelay is the wait after a 5xx on the given 1-based attempt.
func serverErrorDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 7 {
		return MaxServerErrorDelay
	}
	return min(time.Second<<(attempt-1), MaxServerErrorDelay)
}

// reportBackOff replays the wait chosen by the last attempt: the server's
// retryIn after a pending response, serverErrorDelay after a 5xx.
type reportBackOff struct {
	next time.Duration
}

func newReportBackOff() *reportBackOff {
	return &reportBackOff{}
}

func (b *reportBackOff) resumeAfter(d time.Duration) {
	b.next = d
}

func (b *reportBackOff) NextBackOff() time.Duration {
	d := b.next
	b.next = 0
	if d <= 0 {
		return backoff.Stop
	}
	return d
}

func (b *reportBackOff) Reset() {
	b.next = 0
}
