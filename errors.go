package vecfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/hupe1980/vecfs/internal/block"
	"github.com/hupe1980/vecfs/internal/engine"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/internal/resource"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

var (
	// ErrInvalidArgument is returned for bad dimensions, k, ef, weights or flags.
	ErrInvalidArgument = engine.ErrInvalidArgument
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = engine.ErrDimensionMismatch
	// ErrUnsupportedElementType is returned for unknown element type codes.
	ErrUnsupportedElementType = layout.ErrUnsupportedElementType
	// ErrMisalignedAlignment is returned when alignment is not 16, 32 or 64.
	ErrMisalignedAlignment = layout.ErrMisalignedAlignment
	// ErrChecksumMismatch is returned when a block checksum does not verify.
	// Errors carrying it also match ErrIndexCorrupt.
	ErrChecksumMismatch = block.ErrChecksumMismatch
	// ErrIndexCorrupt is returned when a stored block fails validation.
	// Corrupt blocks are surfaced, never repaired or skipped.
	ErrIndexCorrupt = block.ErrIndexCorrupt
	// ErrCapacityExceeded is returned when a dimension or count exceeds a hard limit.
	ErrCapacityExceeded = layout.ErrCapacityExceeded
	// ErrLockTimeout is returned when the context ends while waiting for the index lock.
	ErrLockTimeout = resource.ErrLockTimeout
	// ErrStackBudgetExceeded is returned when a guarded operation exceeds its
	// stack or memory budget. Searches fall back to a linear scan instead.
	ErrStackBudgetExceeded = resource.ErrStackBudgetExceeded
	// ErrNotFound is returned for unknown or deleted ids.
	ErrNotFound = hnsw.ErrNotFound
	// ErrDuplicateID is returned when inserting a live id without upsert.
	ErrDuplicateID = hnsw.ErrDuplicateID
	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = engine.ErrClosed
)

// DimensionMismatchError reports the configured and the supplied dimension.
type DimensionMismatchError = engine.DimensionMismatchError

// ErrorCode is the structured error code carried by every response.
type ErrorCode uint32

const (
	CodeOK ErrorCode = iota
	CodeInvalidArgument
	CodeDimensionMismatch
	CodeUnsupportedElementType
	CodeMisalignedAlignment
	CodeChecksumMismatch
	CodeIndexCorrupt
	CodeCapacityExceeded
	CodeLockTimeout
	CodeStackBudgetExceeded
	CodeNotFound
	CodeClosed
	CodeInternal
)

var codeNames = [...]string{
	CodeOK:                     "OK",
	CodeInvalidArgument:        "InvalidArgument",
	CodeDimensionMismatch:      "DimensionMismatch",
	CodeUnsupportedElementType: "UnsupportedElementType",
	CodeMisalignedAlignment:    "MisalignedAlignment",
	CodeChecksumMismatch:       "ChecksumMismatch",
	CodeIndexCorrupt:           "IndexCorrupt",
	CodeCapacityExceeded:       "CapacityExceeded",
	CodeLockTimeout:            "LockTimeout",
	CodeStackBudgetExceeded:    "StackBudgetExceeded",
	CodeNotFound:               "NotFound",
	CodeClosed:                 "Closed",
	CodeInternal:               "Internal",
}

func (c ErrorCode) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// Code maps err to its structured error code. A nil error is CodeOK;
// errors outside the taxonomy are CodeInternal.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrDimensionMismatch):
		return CodeDimensionMismatch
	case errors.Is(err, ErrUnsupportedElementType):
		return CodeUnsupportedElementType
	case errors.Is(err, ErrMisalignedAlignment):
		return CodeMisalignedAlignment
	// Checksum errors also match ErrIndexCorrupt.
	case errors.Is(err, ErrChecksumMismatch):
		return CodeChecksumMismatch
	case errors.Is(err, ErrIndexCorrupt):
		return CodeIndexCorrupt
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrLockTimeout):
		return CodeLockTimeout
	case errors.Is(err, ErrStackBudgetExceeded):
		return CodeStackBudgetExceeded
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

// translateError folds errors of the internal packages into the public
// taxonomy. Sentinels shared with the internal packages pass through.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if Code(err) != CodeInternal {
		return err
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, layout.ErrInvalidDescriptor),
		errors.Is(err, metadata.ErrInvalidFilter),
		errors.Is(err, metadata.ErrSchemaViolation),
		errors.Is(err, hnsw.ErrInvalidOptions),
		errors.Is(err, ErrDuplicateID):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	return err
}
