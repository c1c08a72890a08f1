package vecfs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/vecfs/internal/block"
	"github.com/hupe1980/vecfs/internal/hnsw"
	"github.com/hupe1980/vecfs/layout"
	"github.com/hupe1980/vecfs/metadata"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"Nil", nil, CodeOK},
		{"InvalidArgument", fmt.Errorf("k: %w", ErrInvalidArgument), CodeInvalidArgument},
		{"DimensionMismatch", &DimensionMismatchError{Expected: 4, Actual: 3}, CodeDimensionMismatch},
		{"ElementType", fmt.Errorf("%w: 99", ErrUnsupportedElementType), CodeUnsupportedElementType},
		{"Alignment", ErrMisalignedAlignment, CodeMisalignedAlignment},
		{"Checksum", &block.ChecksumMismatchError{Block: 3, Field: "payload"}, CodeChecksumMismatch},
		{"Corrupt", fmt.Errorf("bad magic: %w", ErrIndexCorrupt), CodeIndexCorrupt},
		{"Capacity", ErrCapacityExceeded, CodeCapacityExceeded},
		{"LockTimeout", ErrLockTimeout, CodeLockTimeout},
		{"StackBudget", ErrStackBudgetExceeded, CodeStackBudgetExceeded},
		{"NotFound", fmt.Errorf("id 7: %w", ErrNotFound), CodeNotFound},
		{"Closed", ErrClosed, CodeClosed},
		{"Other", errors.New("disk on fire"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "OK", CodeOK.String())
	assert.Equal(t, "ChecksumMismatch", CodeChecksumMismatch.String())
	assert.Equal(t, "ErrorCode(99)", ErrorCode(99).String())
}

func TestTranslateError(t *testing.T) {
	t.Run("InvalidArgument", func(t *testing.T) {
		for _, cause := range []error{
			layout.ErrInvalidDescriptor,
			metadata.ErrInvalidFilter,
			metadata.ErrSchemaViolation,
			hnsw.ErrInvalidOptions,
			ErrDuplicateID,
		} {
			err := translateError(fmt.Errorf("op: %w", cause))
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, CodeInvalidArgument, Code(err))
		}
	})

	t.Run("Validation", func(t *testing.T) {
		err := translateError(validate.Struct(&KnnSearchRequest{}))
		assert.Equal(t, CodeInvalidArgument, Code(err))
	})

	t.Run("Deadline", func(t *testing.T) {
		err := translateError(context.DeadlineExceeded)
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("PassThrough", func(t *testing.T) {
		err := fmt.Errorf("read: %w", ErrIndexCorrupt)
		assert.Same(t, err, translateError(err))
		assert.NoError(t, translateError(nil))

		other := errors.New("boom")
		assert.Equal(t, other, translateError(other))
	})
}
