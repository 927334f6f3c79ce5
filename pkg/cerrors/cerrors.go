// Package cerrors defines coded domain errors. Services translate store
// sentinels into these; handlers map codes onto HTTP statuses.
package cerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation      Code = "validation"
	CodeConflict        Code = "conflict"
	CodeNotFound        Code = "not_found"
	CodeTemplateMissing Code = "template_missing"
	CodeGeneration      Code = "generation_failure"
	CodeBadRequest      Code = "bad_request"
	CodeUnauthorized    Code = "unauthorized"
	CodeForbidden       Code = "forbidden"
	CodeInternal        Code = "internal"
)

// Error carries a machine-readable code alongside a human message.
type Error struct {
	code Code
	msg  string
	err  error
}

func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, keeping the chain
// intact for errors.Is/As.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Code() Code { return e.code }

// Message returns the user-facing message without the wrapped cause.
func (e *Error) Message() string { return e.msg }

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	for errors.As(err, &coded) {
		if coded.code == code {
			return true
		}
		err = coded.err
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return CodeInternal
}
