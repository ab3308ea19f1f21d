// Sentinel error kinds for the storage stack. These play the role POSIX errno
// values play in an OS driver: every failure surfaced by the module is one of
// these, possibly wrapped with extra context.

package errors

import "fmt"

type StorageError string

// ErrTransport reports a bulk I/O failure or timeout on the USB pipe.
const ErrTransport = StorageError("USB transport failure")

// ErrScsi reports a SCSI command that completed with a failing or phase-error
// status in its CSW.
const ErrScsi = StorageError("SCSI command failed")

// ErrInvalidFormat reports bad on-disk structures: missing signatures,
// impossible BPB values, FAT cycles, reserved cluster references.
const ErrInvalidFormat = StorageError("Invalid on-disk format")

// ErrNoSpace reports that the volume has no free clusters left.
const ErrNoSpace = StorageError("No space left on device")

// ErrExists reports a name collision on create, move, or rename.
const ErrExists = StorageError("File exists")

// ErrNotFound reports a path resolution miss.
const ErrNotFound = StorageError("No such file or directory")

// ErrIsADirectory reports a file-only operation attempted on a directory.
const ErrIsADirectory = StorageError("Is a directory")

// ErrNotADirectory reports a directory-only operation attempted on a file.
const ErrNotADirectory = StorageError("Not a directory")

// ErrReadOnly reports a mutation of something immutable, such as renaming or
// deleting the root directory.
const ErrReadOnly = StorageError("Operation not permitted")

// ErrCrossFileSystem reports a move between different volumes.
const ErrCrossFileSystem = StorageError("Invalid cross-device link")

// ErrUnsupported reports structures the module recognizes but does not
// handle: non-FAT32 partitions, unsupported sector sizes, GPT disks.
const ErrUnsupported = StorageError("Unsupported medium")

// ErrArgumentOutOfRange reports misuse of an internal API, such as an
// unaligned block offset.
const ErrArgumentOutOfRange = StorageError("Numerical argument out of domain")

// ErrIOFailed reports a short or failed read/write that is not attributable
// to the transport or a SCSI status.
const ErrIOFailed = StorageError("Input/output error")

func (e StorageError) Error() string {
	return string(e)
}

func (e StorageError) WithMessage(message string) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.Error(), message),
		kind:    e,
		cause:   e,
	}
}

func (e StorageError) WrapError(err error) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		kind:    e,
		cause:   err,
	}
}
