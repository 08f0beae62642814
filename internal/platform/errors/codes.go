package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Transaction errors
	CodeMutationFailed   Code = "MUTATION_FAILED"
	CodeQueryFailed      Code = "QUERY_FAILED"
	CodeTransactionFault Code = "TRANSACTION_FAULT"
	CodeNoTransaction    Code = "NO_TRANSACTION"
	CodeLockTimeout      Code = "LOCK_TIMEOUT"
	CodeStoreUnusable    Code = "STORE_UNUSABLE"

	// Validation errors
	CodeValidation Code = "VALIDATION_FAILED"

	// Registry errors
	CodeUnknownMutationType Code = "UNKNOWN_MUTATION_TYPE"
	CodeUnknownQueryType    Code = "UNKNOWN_QUERY_TYPE"

	// Event log errors
	CodeSerialization Code = "SERIALIZATION_FAILED"
	CodeStorage       Code = "STORAGE_FAILED"
	CodeReplay        Code = "REPLAY_FAILED"

	// Domain errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeInvalidAmount Code = "INVALID_AMOUNT"

	// Transport errors
	CodeDecode               Code = "DECODE_FAILED"
	CodeEncode               Code = "ENCODE_FAILED"
	CodeUnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"
	CodeNotAcceptable        Code = "NOT_ACCEPTABLE"
)

// HTTPStatus maps failure codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeValidation,
		CodeInvalidAmount,
		CodeDecode,
		CodeMutationFailed,
		CodeQueryFailed:
		return http.StatusBadRequest

	// Not found - unknown resource or operation
	case CodeNotFound,
		CodeUnknownMutationType,
		CodeUnknownQueryType:
		return http.StatusNotFound

	// Conflict - unique resource constraint
	case CodeAlreadyExists:
		return http.StatusConflict

	case CodeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType

	case CodeNotAcceptable:
		return http.StatusNotAcceptable

	// Unavailable - the store cannot take the request right now
	case CodeLockTimeout,
		CodeStoreUnusable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus maps a failure to an HTTP status, preferring the most specific
// code in the chain and falling back on the failure kind.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	status := CodeOf(err).HTTPStatus()
	if status == http.StatusInternalServerError && IsApplication(err) {
		return http.StatusBadRequest
	}
	return status
}
