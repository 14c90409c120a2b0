package direct

import (
	"errors"
	"fmt"
)

// ErrReportExhausted matches every *ReportExhaustedError.
var ErrReportExhausted = errors.New("report was not ready after the maximum number of attempts")

// TransportError is an HTTP-level failure: a non-200 status from a service
// call, or a request that never produced a response (StatusCode 0, Err set).
type TransportError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: request failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is the error object of a 200 response.
type APIError struct {
	Service   string
	RequestID string
	Code      int
	Message   string
	Detail    string
	Raw       Document
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Raw.String()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s: API error %d: %s (request %s)", e.Service, e.Code, msg, e.RequestID)
	}
	return fmt.Sprintf("%s: API error %d: %s", e.Service, e.Code, msg)
}

// ReportError is a report request rejected by the server: any 4xx status, or
// a status outside the report protocol. 5xx statuses become ReportError only
// as the last status of an exhausted poll.
type ReportError struct {
	StatusCode int
	Body       string
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// ReportExhaustedError reports a poll that ran out of attempts.
type ReportExhaustedError struct {
	Attempts   int
	LastStatus int
}

func (e *ReportExhaustedError) Error() string {
	return fmt.Sprintf("%v: %d attempts, last status %d", ErrReportExhausted, e.Attempts, e.LastStatus)
}

func (e *ReportExhaustedError) Is(target error) bool {
	return target == ErrReportExhausted
}

// errReportPending drives the poll loop; it never reaches callers.
type errReportPending struct {
	status int
}

func (e *errReportPending) Error() string {
	return fmt.Sprintf("report pending (HTTP %d)", e.status)
}
