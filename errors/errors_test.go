package errors_test

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rifkyprayoga/usbfat/errors"
)

func TestStorageErrorWithMessage(t *testing.T) {
	newErr := errors.ErrNoSpace.WithMessage("asdfqwerty")
	assert.Equal(
		t, "No space left on device: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, errors.ErrNoSpace)
}

func TestStorageErrorWrapError(t *testing.T) {
	originalErr := goerrors.New("original error")
	newErr := errors.ErrExists.WrapError(originalErr)
	expectedMessage := "File exists: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, errors.ErrExists, "sentinel not set as parent")
}

func TestStorageErrorChainedContext(t *testing.T) {
	newErr := errors.ErrScsi.WithMessage("first").WithMessage("second")
	assert.Equal(t, "SCSI command failed: first: second", newErr.Error())
	assert.ErrorIs(t, newErr, errors.ErrScsi)
}
