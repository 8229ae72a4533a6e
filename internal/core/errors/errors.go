package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeParseError       ErrorCode = "PARSE_ERROR"
	CodeFragmentCycle    ErrorCode = "FRAGMENT_CYCLE"
	CodeFragmentNotFound ErrorCode = "FRAGMENT_NOT_FOUND"
	CodeValidationError  ErrorCode = "VALIDATION_ERROR"
	CodeTransformError   ErrorCode = "TRANSFORM_ERROR"
	CodeApplyError       ErrorCode = "APPLY_ERROR"
	CodeRolloutError     ErrorCode = "ROLLOUT_ERROR"
	CodeHealthCheckError ErrorCode = "HEALTH_CHECK_ERROR"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// Context keys shared across the pipeline so error reports stay uniform.
const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxFragment  = "fragment"
	CtxStage     = "stage"
	CtxHint      = "hint"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

func (e *DomainError) WithContext(key string, value any) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Newf(code ErrorCode, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

func AddContext(err error, key string, value any) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]any{key: value},
	}
}

func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the error's code, or CodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
