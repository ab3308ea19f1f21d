package fat32

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/errors"
)

// Directory is the mutable view of one on-disk directory. Entries are
// parsed once on first access and cached; every structural mutation
// re-serializes the whole table and writes it through.
type Directory struct {
	fs     *FileSystem
	parent *Directory

	// dirent is this directory's entry in the parent's table; nil for the
	// root, which exists only in the boot sector.
	dirent *Dirent

	chain       *ClusterChain
	entries     []*Dirent
	byFolded    map[string]*Dirent
	shortNames  map[ShortName]bool
	volumeLabel *RawDirent

	// views maps entries to the UsbFile handles given out for them, so a
	// caller always gets the same object (and the same cache) back.
	views map[*Dirent]usbfat.UsbFile

	initialized bool
}

var _ usbfat.UsbFile = (*Directory)(nil)

// foldName is the locale-independent fold lookups use: ASCII letters only,
// so case-insensitivity matches what the on-disk format promises.
func foldName(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, name)
}

// init reads the cluster chain and parses the entry table. It runs exactly
// once per directory; later calls are no-ops.
func (dir *Directory) init() error {
	if dir.initialized {
		return nil
	}

	startCluster := dir.fs.bs.RootDirCluster
	if dir.dirent != nil {
		startCluster = dir.dirent.FirstCluster()
	}
	chain, err := newClusterChain(dir.fs.fat, dir.fs.bio, dir.fs.bs, startCluster)
	if err != nil {
		return err
	}
	dir.chain = chain

	table := make([]byte, chain.CapacityBytes())
	if err := chain.Read(0, table); err != nil {
		return err
	}

	dir.entries = nil
	dir.byFolded = make(map[string]*Dirent)
	dir.shortNames = make(map[ShortName]bool)
	dir.views = make(map[*Dirent]usbfat.UsbFile)

	var lfn lfnAccumulator
parse:
	for offset := 0; offset+DirentSize <= len(table); offset += DirentSize {
		slot := table[offset : offset+DirentSize]
		raw := ParseRawDirent(slot)

		switch {
		case raw.IsFree():
			// A never-used slot ends the table.
			break parse
		case raw.IsDeleted():
			lfn.reset()
		case raw.IsLongName():
			lfn.add(slot)
		case raw.IsVolumeLabel():
			lfn.reset()
			label := raw
			dir.volumeLabel = &label
		default:
			short := ShortNameFromBytes(raw.ShortNameBytes())
			longName, ok := lfn.finish(short)
			if !ok {
				dir.fs.logger.Warn(
					"long name checksum mismatch, falling back to short name",
					zap.String("short_name", short.String()),
				)
			}
			dir.addEntry(&Dirent{longName: longName, shortName: short, raw: raw})
		}
	}

	dir.initialized = true
	return nil
}

func (dir *Directory) addEntry(dirent *Dirent) {
	dir.entries = append(dir.entries, dirent)
	dir.shortNames[dirent.ShortName()] = true
	if !dirent.IsDot() {
		dir.byFolded[foldName(dirent.Name())] = dirent
	}
}

func (dir *Directory) removeEntry(dirent *Dirent) {
	for i, entry := range dir.entries {
		if entry == dirent {
			dir.entries = append(dir.entries[:i], dir.entries[i+1:]...)
			break
		}
	}
	delete(dir.shortNames, dirent.ShortName())
	delete(dir.byFolded, foldName(dirent.Name()))
	delete(dir.views, dirent)
}

// write re-serializes the entire table and pushes it through the cluster
// chain, resizing the chain first. The serialized layout is the volume
// label (root only), then each entry's LFN run and short entry, then a
// zeroed sentinel slot when space remains.
func (dir *Directory) write() error {
	slots := 0
	if dir.volumeLabel != nil {
		slots++
	}
	for _, entry := range dir.entries {
		slots += entry.entryCount()
	}

	totalBytes := int64(slots) * DirentSize
	if err := dir.chain.SetLength(totalBytes); err != nil {
		return err
	}

	// The buffer spans the whole chain so the slack past the last entry is
	// written as zeroes, which includes the sentinel slot.
	table := make([]byte, dir.chain.CapacityBytes())
	offset := 0
	if dir.volumeLabel != nil {
		dir.volumeLabel.Serialize(table[offset : offset+DirentSize])
		offset += DirentSize
	}
	for _, entry := range dir.entries {
		offset += entry.serialize(table[offset:])
	}

	return dir.chain.Write(0, table)
}

// ReadRawSlots reads 32-byte slots straight from the directory's cluster
// chain, bypassing the parsed cache. Inspection tools and tests use it to
// look at the table as it exists on disk.
func (dir *Directory) ReadRawSlots(offset int64, dst []byte) error {
	if err := dir.init(); err != nil {
		return err
	}
	return dir.chain.Read(offset, dst)
}

// view returns the cached UsbFile handle for an entry, building it on
// first use.
func (dir *Directory) view(dirent *Dirent) usbfat.UsbFile {
	if handle, ok := dir.views[dirent]; ok {
		return handle
	}

	var handle usbfat.UsbFile
	if dirent.IsDirectory() {
		handle = &Directory{fs: dir.fs, parent: dir, dirent: dirent}
	} else {
		handle = &File{fs: dir.fs, parent: dir, dirent: dirent}
	}
	dir.views[dirent] = handle
	return handle
}

// -----------------------------------------------------------------------------
// UsbFile implementation

func (dir *Directory) Name() string {
	if dir.dirent == nil {
		return "/"
	}
	return dir.dirent.Name()
}

func (dir *Directory) IsDirectory() bool {
	return true
}

func (dir *Directory) IsRoot() bool {
	return dir.dirent == nil
}

func (dir *Directory) Parent() usbfat.UsbFile {
	if dir.parent == nil {
		return nil
	}
	return dir.parent
}

func (dir *Directory) AbsolutePath() string {
	if dir.IsRoot() {
		return "/"
	}
	return joinPath(dir.parent.AbsolutePath(), dir.Name())
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Length is 0 for directories; the on-disk size field stays unused.
func (dir *Directory) Length() int64 {
	return 0
}

func (dir *Directory) SetLength(int64) error {
	return errors.ErrIsADirectory.WithMessage(dir.Name())
}

func (dir *Directory) CreatedAt() time.Time {
	if dir.dirent == nil {
		return time.Time{}
	}
	return dir.dirent.CreatedAt()
}

func (dir *Directory) LastModified() time.Time {
	if dir.dirent == nil {
		return time.Time{}
	}
	return dir.dirent.LastModified()
}

func (dir *Directory) LastAccessed() time.Time {
	if dir.dirent == nil {
		return time.Time{}
	}
	return dir.dirent.LastAccessed()
}

func (dir *Directory) ReadAt(int64, []byte) error {
	return errors.ErrIsADirectory.WithMessage(dir.Name())
}

func (dir *Directory) WriteAt(int64, []byte) error {
	return errors.ErrIsADirectory.WithMessage(dir.Name())
}

// Flush is a no-op for directories: every structural mutation writes the
// table before it returns.
func (dir *Directory) Flush() error {
	return nil
}

func (dir *Directory) Close() error {
	return nil
}

// List returns the entry names in table order, without the dot entries and
// the volume label.
func (dir *Directory) List() ([]string, error) {
	if err := dir.init(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(dir.entries))
	for _, entry := range dir.entries {
		if entry.IsDot() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (dir *Directory) ListFiles() ([]usbfat.UsbFile, error) {
	if err := dir.init(); err != nil {
		return nil, err
	}

	files := make([]usbfat.UsbFile, 0, len(dir.entries))
	for _, entry := range dir.entries {
		if entry.IsDot() {
			continue
		}
		files = append(files, dir.view(entry))
	}
	return files, nil
}

// CreateFile creates an empty file with one allocated cluster and writes
// the updated table before returning.
func (dir *Directory) CreateFile(name string) (usbfat.UsbFile, error) {
	dirent, err := dir.createEntry(name, false)
	if err != nil {
		return nil, err
	}
	return dir.view(dirent), nil
}

// CreateDirectory creates a subdirectory, populates its "." and ".."
// entries, and writes both tables before returning.
func (dir *Directory) CreateDirectory(name string) (usbfat.UsbFile, error) {
	dirent, err := dir.createEntry(name, true)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	parentCluster := uint32(0)
	if !dir.IsRoot() {
		parentCluster = dir.dirent.FirstCluster()
	}

	child := dir.view(dirent).(*Directory)
	childChain, err := newClusterChain(dir.fs.fat, dir.fs.bio, dir.fs.bs, dirent.FirstCluster())
	if err != nil {
		return nil, err
	}
	child.chain = childChain
	child.byFolded = make(map[string]*Dirent)
	child.shortNames = make(map[ShortName]bool)
	child.views = make(map[*Dirent]usbfat.UsbFile)
	child.addEntry(newDotDirent(DotName, dirent.FirstCluster(), now))
	child.addEntry(newDotDirent(DotDotName, parentCluster, now))
	child.initialized = true

	if err := child.write(); err != nil {
		return nil, err
	}
	return child, nil
}

// createEntry does the shared half of CreateFile and CreateDirectory: name
// collision check, short-name generation, first cluster allocation, table
// rewrite.
func (dir *Directory) createEntry(name string, isDirectory bool) (*Dirent, error) {
	if err := dir.init(); err != nil {
		return nil, err
	}
	if name == "" || name == "." || name == ".." || strings.Contains(name, usbfat.PathSeparator) {
		return nil, errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("illegal entry name %q", name),
		)
	}
	if _, exists := dir.byFolded[foldName(name)]; exists {
		return nil, errors.ErrExists.WithMessage(name)
	}

	short := GenerateShortName(name, dir.shortNames)
	dirent := newDirent(name, short, isDirectory, time.Now())

	chain, err := newClusterChain(dir.fs.fat, dir.fs.bio, dir.fs.bs, 0)
	if err != nil {
		return nil, err
	}
	if err := chain.SetLength(1); err != nil {
		return nil, err
	}
	dirent.SetFirstCluster(chain.FirstCluster())

	dir.addEntry(dirent)
	if err := dir.write(); err != nil {
		return nil, err
	}
	return dirent, nil
}

// Search resolves a slash-separated path beneath this directory, case
// insensitively. A miss returns (nil, nil).
func (dir *Directory) Search(path string) (usbfat.UsbFile, error) {
	if err := dir.init(); err != nil {
		return nil, err
	}

	path = strings.Trim(path, usbfat.PathSeparator)
	if path == "" {
		return dir, nil
	}

	first := path
	rest := ""
	if cut := strings.Index(path, usbfat.PathSeparator); cut >= 0 {
		first, rest = path[:cut], path[cut+1:]
	}

	entry, ok := dir.byFolded[foldName(first)]
	if !ok {
		return nil, nil
	}
	handle := dir.view(entry)

	if rest == "" {
		return handle, nil
	}
	subdir, ok := handle.(*Directory)
	if !ok {
		return nil, nil
	}
	return subdir.Search(rest)
}

// SetName renames this directory in its parent's table.
func (dir *Directory) SetName(newName string) error {
	if dir.IsRoot() {
		return errors.ErrReadOnly.WithMessage("cannot rename the root directory")
	}
	return dir.parent.renameEntry(dir.dirent, newName)
}

// renameEntry gives an entry a new long name, regenerates its short name,
// and rewrites the table.
func (dir *Directory) renameEntry(dirent *Dirent, newName string) error {
	if err := dir.init(); err != nil {
		return err
	}
	// A collision with the entry itself is just a case change and is fine.
	if existing, ok := dir.byFolded[foldName(newName)]; ok && existing != dirent {
		return errors.ErrExists.WithMessage(newName)
	}

	delete(dir.byFolded, foldName(dirent.Name()))
	delete(dir.shortNames, dirent.ShortName())

	dirent.Rename(newName, GenerateShortName(newName, dir.shortNames))
	dir.shortNames[dirent.ShortName()] = true
	dir.byFolded[foldName(newName)] = dirent

	return dir.write()
}

// MoveTo moves this directory under another directory on the same volume.
func (dir *Directory) MoveTo(destDir usbfat.UsbFile) error {
	if dir.IsRoot() {
		return errors.ErrReadOnly.WithMessage("cannot move the root directory")
	}
	dest, err := dir.fs.resolveDirectory(destDir)
	if err != nil {
		return err
	}
	if err := dir.parent.move(dir.dirent, dest); err != nil {
		return err
	}
	dir.parent = dest

	// The child's ".." entry points at the old parent; repoint it.
	if err := dir.init(); err != nil {
		return err
	}
	parentCluster := uint32(0)
	if !dest.IsRoot() {
		parentCluster = dest.dirent.FirstCluster()
	}
	for _, entry := range dir.entries {
		if entry.IsDot() && entry.ShortName() == DotDotName {
			entry.SetFirstCluster(parentCluster)
			return dir.write()
		}
	}
	return nil
}

// move detaches an entry from this directory and appends it to dest,
// rewriting both tables. The short name is regenerated when it collides in
// the destination.
func (dir *Directory) move(dirent *Dirent, dest *Directory) error {
	if err := dir.init(); err != nil {
		return err
	}
	if err := dest.init(); err != nil {
		return err
	}
	if dest == dir {
		return nil
	}
	if _, exists := dest.byFolded[foldName(dirent.Name())]; exists {
		return errors.ErrExists.WithMessage(dirent.Name())
	}

	handle := dir.views[dirent]
	dir.removeEntry(dirent)

	if dest.shortNames[dirent.ShortName()] {
		dirent.Rename(dirent.Name(), GenerateShortName(dirent.Name(), dest.shortNames))
	}
	dest.addEntry(dirent)
	if handle != nil {
		dest.views[dirent] = handle
	}

	if err := dir.write(); err != nil {
		return err
	}
	return dest.write()
}

// Delete removes this directory and everything beneath it, then releases
// its clusters. The root cannot be deleted.
func (dir *Directory) Delete() error {
	if dir.IsRoot() {
		return errors.ErrReadOnly.WithMessage("cannot delete the root directory")
	}
	if err := dir.init(); err != nil {
		return err
	}

	children, err := dir.ListFiles()
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := child.Delete(); err != nil {
			return err
		}
	}

	if err := dir.chain.SetLength(0); err != nil {
		return err
	}
	dir.parent.removeEntry(dir.dirent)
	return dir.parent.write()
}
