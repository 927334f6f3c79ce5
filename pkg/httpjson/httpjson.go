// Package httpjson holds the JSON response helpers shared by all handlers.
package httpjson

import (
	"encoding/json"
	"errors"
	"net/http"

	"brgycert/pkg/cerrors"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Write encodes v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a coded error onto an HTTP status and JSON body. Plain
// errors are reported as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	code := cerrors.CodeOf(err)
	msg := "internal error"
	var coded *cerrors.Error
	if errors.As(err, &coded) && code != cerrors.CodeInternal {
		msg = coded.Message()
	}
	Write(w, statusFor(code), errorBody{Error: string(code), Message: msg})
}

func statusFor(code cerrors.Code) int {
	switch code {
	case cerrors.CodeValidation, cerrors.CodeBadRequest:
		return http.StatusBadRequest
	case cerrors.CodeConflict:
		return http.StatusConflict
	case cerrors.CodeNotFound, cerrors.CodeTemplateMissing:
		return http.StatusNotFound
	case cerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case cerrors.CodeForbidden:
		return http.StatusForbidden
	case cerrors.CodeGeneration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
