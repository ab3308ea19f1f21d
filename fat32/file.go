package fat32

import (
	"fmt"
	"time"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/errors"
)

// File is a length-backed random-access byte file. Data goes to the device
// on every write; the size and timestamp in the parent's entry table only
// become durable on Flush or when the parent rewrites its table for
// another reason.
type File struct {
	fs     *FileSystem
	parent *Directory
	dirent *Dirent
	chain  *ClusterChain
}

var _ usbfat.UsbFile = (*File)(nil)

func (f *File) ensureChain() error {
	if f.chain != nil {
		return nil
	}
	chain, err := newClusterChain(f.fs.fat, f.fs.bio, f.fs.bs, f.dirent.FirstCluster())
	if err != nil {
		return err
	}
	f.chain = chain
	return nil
}

// -----------------------------------------------------------------------------
// UsbFile implementation

func (f *File) Name() string {
	return f.dirent.Name()
}

func (f *File) SetName(newName string) error {
	return f.parent.renameEntry(f.dirent, newName)
}

func (f *File) IsDirectory() bool {
	return false
}

func (f *File) IsRoot() bool {
	return false
}

func (f *File) Parent() usbfat.UsbFile {
	return f.parent
}

func (f *File) AbsolutePath() string {
	return joinPath(f.parent.AbsolutePath(), f.Name())
}

func (f *File) Length() int64 {
	return f.dirent.FileSize()
}

// SetLength resizes the file, allocating or releasing clusters. The new
// size is recorded in the parent-held entry; call Flush to make it
// durable.
func (f *File) SetLength(newLength int64) error {
	if err := f.ensureChain(); err != nil {
		return err
	}
	if err := f.chain.SetLength(newLength); err != nil {
		return err
	}
	f.dirent.SetFirstCluster(f.chain.FirstCluster())
	f.dirent.SetFileSize(newLength)
	return nil
}

func (f *File) CreatedAt() time.Time {
	return f.dirent.CreatedAt()
}

func (f *File) LastModified() time.Time {
	return f.dirent.LastModified()
}

func (f *File) LastAccessed() time.Time {
	return f.dirent.LastAccessed()
}

// ReadAt fills dst from the file starting at offset. Reading past the
// current length is an error.
func (f *File) ReadAt(offset int64, dst []byte) error {
	if offset < 0 || offset+int64(len(dst)) > f.Length() {
		return errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"read of %d bytes at %d outside the %d-byte file",
				len(dst),
				offset,
				f.Length(),
			),
		)
	}
	if err := f.ensureChain(); err != nil {
		return err
	}
	return f.chain.Read(offset, dst)
}

// WriteAt stores src at offset, growing the file when the write extends
// past the end.
func (f *File) WriteAt(offset int64, src []byte) error {
	if offset < 0 {
		return errors.ErrArgumentOutOfRange.WithMessage("negative offset")
	}
	if err := f.ensureChain(); err != nil {
		return err
	}

	end := offset + int64(len(src))
	if end > f.Length() {
		if err := f.chain.SetLength(end); err != nil {
			return err
		}
		f.dirent.SetFirstCluster(f.chain.FirstCluster())
		f.dirent.SetFileSize(end)
	}

	if err := f.chain.Write(offset, src); err != nil {
		return err
	}
	f.dirent.SetLastModified(time.Now())
	return nil
}

// Flush writes the parent's entry table so pending size and timestamp
// changes reach the device.
func (f *File) Flush() error {
	return f.parent.write()
}

// Close flushes pending metadata, matching the close-then-remount
// durability promise.
func (f *File) Close() error {
	return f.Flush()
}

func (f *File) List() ([]string, error) {
	return nil, errors.ErrNotADirectory.WithMessage(f.Name())
}

func (f *File) ListFiles() ([]usbfat.UsbFile, error) {
	return nil, errors.ErrNotADirectory.WithMessage(f.Name())
}

func (f *File) CreateFile(string) (usbfat.UsbFile, error) {
	return nil, errors.ErrNotADirectory.WithMessage(f.Name())
}

func (f *File) CreateDirectory(string) (usbfat.UsbFile, error) {
	return nil, errors.ErrNotADirectory.WithMessage(f.Name())
}

func (f *File) Search(string) (usbfat.UsbFile, error) {
	return nil, errors.ErrNotADirectory.WithMessage(f.Name())
}

// MoveTo reattaches the file under another directory on the same volume.
func (f *File) MoveTo(destDir usbfat.UsbFile) error {
	dest, err := f.fs.resolveDirectory(destDir)
	if err != nil {
		return err
	}
	if err := f.parent.move(f.dirent, dest); err != nil {
		return err
	}
	f.parent = dest
	return nil
}

// Delete removes the file's entry and releases its clusters.
func (f *File) Delete() error {
	if err := f.ensureChain(); err != nil {
		return err
	}
	if err := f.chain.SetLength(0); err != nil {
		return err
	}
	f.parent.removeEntry(f.dirent)
	return f.parent.write()
}
