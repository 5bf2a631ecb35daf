package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST ErrCode = "REQUEST_FAILED"
	BAD_REQUEST    ErrCode = "FAILED_TO_DECODE"
	NOT_FOUND      ErrCode = "NOT_FOUND"
	VALIDATION     ErrCode = "VALIDATION_FAILED"
	CONFIGURATION  ErrCode = "CONFIGURATION_ERROR"
	CONFLICT       ErrCode = "CONFLICT"
	LOCKED         ErrCode = "LOCKED"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("resource not found")
	// ErrValidation: the caller sent something the domain rejects
	// (unsupported package size, billing mode mismatch, bad weekday).
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration: an entity is misconfigured (single-mode student
	// without a price, unknown IANA timezone). Not retriable.
	ErrConfiguration = errors.New("configuration error")
	ErrConflict      = errors.New("conflict")
	ErrLocked        = errors.New("resource is locked")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
