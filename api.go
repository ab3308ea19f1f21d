// Package usbfat exposes a hierarchical file system over a FAT32 volume on a
// USB mass storage device. The USB transport itself (device enumeration,
// endpoint discovery, interface claiming) is an injected capability; everything
// from SCSI command framing up to directory mutation lives in this module.
package usbfat

import (
	"time"

	"go.uber.org/zap"
)

// PathSeparator is the separator used by [UsbFile.Search]. Lookups split on it
// regardless of the host platform.
const PathSeparator = "/"

// DefaultTransferTimeout is the bulk-transfer timeout handed to the USB
// communication layer when the caller doesn't override it.
const DefaultTransferTimeout = 21 * time.Second

// UsbFile is a node in the file system tree: either a regular file or a
// directory. Directory-only methods fail with ErrNotADirectory when called on
// a file, and file-only methods fail with ErrIsADirectory when called on a
// directory.
//
// A UsbFile is not internally synchronized. At most one operation may be in
// flight per file system instance; the caller is responsible for serializing
// access, typically with a mutex around every call.
type UsbFile interface {
	// Name returns the name of this entry without any path component. The
	// root directory returns "/".
	Name() string

	// SetName renames the entry in place, regenerating its short name. The
	// root directory cannot be renamed.
	SetName(newName string) error

	// IsDirectory reports whether this node is a directory.
	IsDirectory() bool

	// IsRoot reports whether this node is the root directory of its volume.
	IsRoot() bool

	// Parent returns the containing directory, or nil for the root.
	Parent() UsbFile

	// AbsolutePath returns the path of this entry from the root, separated by
	// [PathSeparator].
	AbsolutePath() string

	// Length returns the size of a file in bytes. Directories have no defined
	// length and return 0.
	Length() int64

	// SetLength resizes a file, allocating or releasing clusters as needed.
	// Fails with ErrIsADirectory on directories.
	SetLength(newLength int64) error

	CreatedAt() time.Time
	LastModified() time.Time
	LastAccessed() time.Time

	// ReadAt fills dst with file contents beginning at offset. Reads are
	// bounded by the current file length.
	ReadAt(offset int64, dst []byte) error

	// WriteAt writes src into the file beginning at offset, growing the file
	// if the write extends past the end. Length and timestamp changes are not
	// durable until Flush is called or the parent directory is rewritten.
	WriteAt(offset int64, src []byte) error

	// Flush writes the parent directory's entry table so that pending size and
	// timestamp changes become durable.
	Flush() error

	// Close flushes pending metadata. The handle stays usable afterwards; the
	// method exists so handles can be managed like os.File.
	Close() error

	// List returns the names of the entries in a directory, excluding the "."
	// and ".." entries and the volume label.
	List() ([]string, error)

	// ListFiles resolves every listed name to a UsbFile.
	ListFiles() ([]UsbFile, error)

	// CreateFile creates an empty file in this directory. Fails with ErrExists
	// if the name is already taken under case folding.
	CreateFile(name string) (UsbFile, error)

	// CreateDirectory creates a subdirectory, including its "." and ".."
	// entries. Fails with ErrExists on a name collision.
	CreateDirectory(name string) (UsbFile, error)

	// Search resolves a relative path beneath this directory. It returns
	// (nil, nil) when the path does not exist; errors are reserved for I/O and
	// structural failures.
	Search(path string) (UsbFile, error)

	// MoveTo moves this entry into destDir, which must be a directory on the
	// same volume. Fails with ErrNotADirectory when destDir is a file, and
	// with ErrCrossFileSystem when it is not a directory of this volume.
	MoveTo(destDir UsbFile) error

	// Delete removes this entry, recursively for directories, and releases
	// every cluster it occupied. Deleting the root is rejected.
	Delete() error
}

// Config carries the knobs shared by every layer of the stack.
type Config struct {
	// Logger receives protocol retry notices and format warnings. Defaults to
	// a no-op logger.
	Logger *zap.Logger

	// TransferTimeout bounds each bulk transfer. Zero means
	// [DefaultTransferTimeout].
	TransferTimeout time.Duration

	// LUN selects the logical unit of the mass storage device.
	LUN uint8
}

// Normalized returns a copy of the config with defaults filled in. A zero
// Config is valid.
func (cfg Config) Normalized() Config {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = DefaultTransferTimeout
	}
	return cfg
}
