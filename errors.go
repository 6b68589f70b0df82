package edgebridge

import "github.com/zen-systems/edgebridge/internal/errs"

// Error is the structured error type returned by bridge operations.
type Error = errs.Error

// Error classification codes.
const (
	CodeHeapUninit        = errs.CodeHeapUninit
	CodeOutOfCapacity     = errs.CodeOutOfCapacity
	CodeFragmented        = errs.CodeFragmented
	CodeNotFound          = errs.CodeNotFound
	CodeSizeMismatch      = errs.CodeSizeMismatch
	CodeRingFull          = errs.CodeRingFull
	CodeMagicMismatch     = errs.CodeMagicMismatch
	CodeDecodeError       = errs.CodeDecodeError
	CodeHandlerFailure    = errs.CodeHandlerFailure
	CodeExternalIOFailure = errs.CodeExternalIOFailure
)

// NewError creates a new structured error.
func NewError(op string, code errs.Code, msg string) *Error {
	return errs.New(op, code, msg)
}

// WrapError wraps an existing error with a code and operation context.
func WrapError(op string, code errs.Code, inner error) *Error {
	return errs.Wrap(op, code, inner)
}
