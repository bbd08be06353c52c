package models

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrWriteFailure        = errors.New("write failure")
	ErrDeliveryFailure     = errors.New("delivery failure")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrPostLocked          = errors.New("post is locked")
	ErrInvalidArgument     = errors.New("invalid argument")
)

type ErrorCode string

const (
	ErrorCodeProtocolViolation   ErrorCode = "protocol_violation"
	ErrorCodeWriteFailure        ErrorCode = "write_failure"
	ErrorCodeAuthorizationDenied ErrorCode = "authorization_denied"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeInvalidArgument     ErrorCode = "invalid_argument"
	ErrorCodeInternal            ErrorCode = "internal"
)

// CodeOf maps an error to the code reported on the wire.
func CodeOf(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrProtocolViolation):
		return ErrorCodeProtocolViolation
	case errors.Is(err, ErrWriteFailure):
		return ErrorCodeWriteFailure
	case errors.Is(err, ErrAuthorizationDenied), errors.Is(err, ErrPostLocked):
		return ErrorCodeAuthorizationDenied
	case errors.Is(err, ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrUsernameTaken):
		return ErrorCodeInvalidArgument
	}
	return ErrorCodeInternal
}
