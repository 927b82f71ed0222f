package domain

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	CodeAborted          ErrorCode = "ABORTED"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolDisabled      = errors.New("tool is disabled")
	ErrDuplicateToolName = errors.New("tool name already registered")
	ErrVersionConflict   = errors.New("tool record changed concurrently")
	ErrStoreClosed       = errors.New("tool store is closed")
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	ErrRemoteToolError   = errors.New("remote tool reported an error")
	ErrServerTooOld      = errors.New("remote server version below minimum")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
	Meta      map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// Wrap attaches op to err, keeping the code of an existing *Error.
func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:      existing.Code,
			Op:        op,
			Message:   existing.Message,
			Cause:     existing.Cause,
			Retryable: existing.Retryable,
			Meta:      existing.Meta,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	var transportErr *TransportCreationError
	var handshakeErr *HandshakeError
	var invocationErr *InvocationError
	var reconcileErr *ReconciliationError
	switch {
	case errors.Is(err, context.Canceled):
		return CodeCanceled, true
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadlineExceeded, true
	case errors.As(err, &transportErr):
		return CodeFailedPrecond, true
	case errors.As(err, &handshakeErr):
		return CodeUnavailable, true
	case errors.As(err, &invocationErr):
		if errors.Is(err, ErrRemoteToolError) {
			return CodeInternal, true
		}
		return CodeUnavailable, true
	case errors.As(err, &reconcileErr):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrInvalidArguments), errors.Is(err, ErrInvalidConfig):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrToolNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrDuplicateToolName):
		return CodeAlreadyExists, true
	case errors.Is(err, ErrVersionConflict):
		return CodeAborted, true
	case errors.Is(err, ErrToolDisabled), errors.Is(err, ErrServerTooOld):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrStoreClosed):
		return CodeUnavailable, true
	default:
		return "", false
	}
}
