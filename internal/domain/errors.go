package domain

import (
	"errors"
	"net/http"
)

// Error codes carried by AppError.
const (
	CodeNotFound      = 1
	CodeAlreadyExists = 2
	CodeValidation    = 3
	CodeInternal      = 4
	CodeUnauthorized  = 5
	CodeUpstream      = 6 // the catalog failed or was unreachable
	CodeForbidden     = 7
)

var codeStatus = map[int]int{
	CodeNotFound:      http.StatusNotFound,
	CodeAlreadyExists: http.StatusConflict,
	CodeValidation:    http.StatusBadRequest,
	CodeInternal:      http.StatusInternalServerError,
	CodeUnauthorized:  http.StatusUnauthorized,
	CodeUpstream:      http.StatusBadGateway,
	CodeForbidden:     http.StatusForbidden,
}

// AppError is an error with a code the transport layers map to a status.
// Message is safe to show to users; Err is not.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// Sentinels for each code. Match them with the Is helpers, which compare
// codes, rather than errors.Is, which compares pointers.
var (
	ErrNotFound      = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists = &AppError{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation    = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal      = &AppError{Code: CodeInternal, Message: "internal error"}
	ErrUnauthorized  = &AppError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrUpstream      = &AppError{Code: CodeUpstream, Message: "catalog unavailable"}
	ErrForbidden     = &AppError{Code: CodeForbidden, Message: "forbidden"}
)

func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func IsNotFound(err error) bool      { return CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool { return CodeOf(err) == CodeAlreadyExists }
func IsValidation(err error) bool    { return CodeOf(err) == CodeValidation }
func IsInternal(err error) bool      { return CodeOf(err) == CodeInternal }
func IsUnauthorized(err error) bool  { return CodeOf(err) == CodeUnauthorized }
func IsUpstream(err error) bool      { return CodeOf(err) == CodeUpstream }
func IsForbidden(err error) bool     { return CodeOf(err) == CodeForbidden }

// CodeOf returns the code of the first AppError in err's chain, or 0.
func CodeOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

// HTTPStatusCode maps err to a status. Anything that is not an AppError
// with a known code is a 500.
func HTTPStatusCode(err error) int {
	if status, ok := codeStatus[CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}
