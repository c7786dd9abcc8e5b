// Package apperr is the error model shared by the blood management services.
// Services return *APIError across package boundaries (a request failure may
// originate in the unit ledger), so the taxonomy lives in one place instead of
// being redeclared per package.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeInvalidReservation Code = "INVALID_RESERVATION"
	CodeNoReservation      Code = "NO_RESERVATION"
	CodeTerminalState      Code = "TERMINAL_STATE"
	CodeInternal           Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Available is set only for INSUFFICIENT_STOCK and reports how many
	// units could actually be reserved.
	Available int `json:"available,omitempty"`
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func ErrInsufficientStock(requested, available int) *APIError {
	return &APIError{
		Code:      CodeInsufficientStock,
		Message:   fmt.Sprintf("requested %d units, only %d available", requested, available),
		Available: available,
	}
}

func ErrInvalidReservation(msg string) *APIError {
	return &APIError{Code: CodeInvalidReservation, Message: msg}
}

func ErrNoReservation(msg string) *APIError {
	return &APIError{Code: CodeNoReservation, Message: msg}
}

func ErrTerminalState(msg string) *APIError {
	return &APIError{Code: CodeTerminalState, Message: msg}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict, CodeInsufficientStock, CodeInvalidReservation, CodeTerminalState:
			return 409
		case CodeNoReservation:
			return 422
		default:
			return 500
		}
	}
	return 500
}

type errorDTO struct {
	Error *APIError `json:"error"`
}

// Body builds the JSON error envelope handlers return.
// Raw store errors are masked as INTERNAL, never leaked verbatim.
func Body(err error) any {
	var api *APIError
	if errors.As(err, &api) {
		return errorDTO{Error: api}
	}
	return errorDTO{Error: ErrInternal("internal error")}
}
