// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// New creates a MpathdError for the given code. details carries the
// call-site specific explanation and may be empty.
func New(code ErrorCode, details string) *MpathdError {
	def, ok := errorDefinitions[code]
	if !ok {
		return &MpathdError{
			Code:       code,
			Domain:     DomainMisc,
			Message:    "Unknown error",
			Details:    details,
			HTTPStatus: http.StatusInternalServerError,
		}
	}

	return &MpathdError{
		Code:       code,
		Domain:     def.domain,
		Message:    def.message,
		Details:    details,
		HTTPStatus: def.httpStatus,
	}
}

// Wrap converts err into a MpathdError with the given code. The original
// error is kept as the cause and remains reachable through errors.Is/As.
func Wrap(err error, code ErrorCode) *MpathdError {
	if err == nil {
		return nil
	}

	re := New(code, err.Error())
	re.cause = err

	// Carry metadata of a wrapped MpathdError forward
	var inner *MpathdError
	if stderrors.As(err, &inner) {
		for k, v := range inner.Metadata {
			re.WithMetadata(k, v)
		}
	}

	return re
}

// WithMetadata attaches a key/value pair to the error and returns it for
// chaining.
func (e *MpathdError) WithMetadata(key, value string) *MpathdError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

func (e *MpathdError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s-%d] %s", e.Domain, e.Code, e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// Unwrap returns the cause passed to Wrap, if any.
func (e *MpathdError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a MpathdError with the same code, which
// lets callers compare against a bare errors.New(code, "").
func (e *MpathdError) Is(target error) bool {
	t, ok := target.(*MpathdError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// GetCode returns the code of the first MpathdError in err's chain, or 0.
func GetCode(err error) ErrorCode {
	var re *MpathdError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return 0
}

// GetHTTPStatus returns the HTTP status mapped to err. Errors that are not
// MpathdErrors map to 500.
func GetHTTPStatus(err error) int {
	var re *MpathdError
	if stderrors.As(err, &re) && re.HTTPStatus != 0 {
		return re.HTTPStatus
	}
	return http.StatusInternalServerError
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
