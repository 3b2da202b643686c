package cli

import (
	"errors"

	"github.com/aidanlsb/kiln/internal/blobs"
	"github.com/aidanlsb/kiln/internal/catalog"
	"github.com/aidanlsb/kiln/internal/codec"
	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/vault"
)

// Error codes for structured error responses. These codes are stable.
const (
	// Vault errors
	ErrVaultNotFound     = "VAULT_NOT_FOUND"
	ErrVaultNotSpecified = "VAULT_NOT_SPECIFIED"
	ErrConfigInvalid     = "CONFIG_INVALID"

	// Schema errors
	ErrTypeNotFound  = "TYPE_NOT_FOUND"
	ErrFieldNotFound = "FIELD_NOT_FOUND"
	ErrTypeMismatch  = "TYPE_MISMATCH"

	// Object errors
	ErrObjectNotFound = "OBJECT_NOT_FOUND"
	ErrObjectInvalid  = "OBJECT_INVALID"
	ErrBufferNotFound = "BUFFER_NOT_FOUND"

	// File errors
	ErrFileReadError  = "FILE_READ_ERROR"
	ErrFileMissing    = "FILE_MISSING"
	ErrFileWriteError = "FILE_WRITE_ERROR"
	ErrParseError     = "PARSE_ERROR"

	// Database errors
	ErrDatabaseError = "DATABASE_ERROR"

	// Input errors
	ErrInvalidInput    = "INVALID_INPUT"
	ErrMissingArgument = "MISSING_ARGUMENT"

	// General errors
	ErrInternal = "INTERNAL_ERROR"
)

// errorCode maps package sentinel errors to error codes.
func errorCode(err error) string {
	var syn *codec.SyntaxError
	switch {
	case errors.Is(err, vault.ErrNotVault):
		return ErrVaultNotFound
	case errors.Is(err, vault.ErrNotFound), errors.Is(err, graph.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return ErrObjectNotFound
	case errors.Is(err, blobs.ErrNotFound):
		return ErrBufferNotFound
	case errors.Is(err, graph.ErrTypeMismatch):
		return ErrTypeMismatch
	case errors.Is(err, codec.ErrUnknownType):
		return ErrTypeNotFound
	case errors.As(err, &syn):
		return ErrParseError
	}
	return ErrInternal
}

// errorCodeOr is errorCode with a fallback for unmapped errors.
func errorCodeOr(err error, fallback string) string {
	if code := errorCode(err); code != ErrInternal {
		return code
	}
	return fallback
}
