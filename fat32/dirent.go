package fat32

import (
	"time"
)

// Dirent is one logical directory entry: the short 8.3 entry every file
// has, plus the long-file-name run serialized in front of it. It lives in
// its parent directory's cached entry list; mutating it does not touch the
// device until the parent rewrites its table.
type Dirent struct {
	longName  string
	shortName ShortName
	raw       RawDirent
}

// newDirent builds a fresh entry with its timestamps set to now.
func newDirent(name string, shortName ShortName, isDirectory bool, now time.Time) *Dirent {
	var raw RawDirent
	nameBytes := shortName.Bytes()
	copy(raw.Name[:], nameBytes[0:8])
	copy(raw.Extension[:], nameBytes[8:11])

	if isDirectory {
		raw.Attributes = AttrDirectory
	} else {
		raw.Attributes = AttrArchive
	}

	datePart, timePart, tenths := DosFromTimestamp(now)
	raw.CreatedDate, raw.CreatedTime, raw.CreatedTenths = datePart, timePart, tenths
	raw.LastModifiedDate, raw.LastModifiedTime = datePart, timePart
	raw.LastAccessedDate = datePart

	return &Dirent{
		longName:  name,
		shortName: shortName,
		raw:       raw,
	}
}

// newDotDirent builds one of the "." / ".." entries a subdirectory starts
// with. Dot entries never carry a long name.
func newDotDirent(shortName ShortName, cluster uint32, now time.Time) *Dirent {
	dirent := newDirent("", shortName, true, now)
	dirent.raw.SetFirstCluster(cluster)
	return dirent
}

// Name returns the long name, or the rendered short name for entries that
// never had one.
func (d *Dirent) Name() string {
	if d.longName != "" {
		return d.longName
	}
	return d.shortName.String()
}

// ShortName returns the 8.3 name backing this entry.
func (d *Dirent) ShortName() ShortName {
	return d.shortName
}

// Rename swaps in a new long name and its regenerated short name.
func (d *Dirent) Rename(name string, shortName ShortName) {
	d.longName = name
	d.shortName = shortName
	nameBytes := shortName.Bytes()
	copy(d.raw.Name[:], nameBytes[0:8])
	copy(d.raw.Extension[:], nameBytes[8:11])
}

func (d *Dirent) IsDirectory() bool {
	return d.raw.IsDirectory()
}

func (d *Dirent) IsDot() bool {
	return d.longName == "" && d.shortName.IsDot()
}

func (d *Dirent) FirstCluster() uint32 {
	return d.raw.FirstCluster()
}

func (d *Dirent) SetFirstCluster(cluster uint32) {
	d.raw.SetFirstCluster(cluster)
}

// FileSize is the length in bytes for files; it is kept at zero for
// directories.
func (d *Dirent) FileSize() int64 {
	return int64(d.raw.FileSize)
}

func (d *Dirent) SetFileSize(size int64) {
	d.raw.FileSize = uint32(size)
}

func (d *Dirent) CreatedAt() time.Time {
	return TimestampFromDos(d.raw.CreatedDate, d.raw.CreatedTime, d.raw.CreatedTenths)
}

func (d *Dirent) LastModified() time.Time {
	return TimestampFromDos(d.raw.LastModifiedDate, d.raw.LastModifiedTime, 0)
}

func (d *Dirent) LastAccessed() time.Time {
	return DateFromDos(d.raw.LastAccessedDate)
}

func (d *Dirent) SetLastModified(t time.Time) {
	datePart, timePart, _ := DosFromTimestamp(t)
	d.raw.LastModifiedDate, d.raw.LastModifiedTime = datePart, timePart
	d.raw.LastAccessedDate = datePart
}

// entryCount is how many 32-byte slots this entry occupies on disk.
func (d *Dirent) entryCount() int {
	if d.longName == "" {
		return 1
	}
	return lfnEntryCount(d.longName) + 1
}

// serialize writes the LFN run and the short entry into buf, returning how
// many bytes it consumed. The highest sequence number goes first, with the
// last-entry marker set.
func (d *Dirent) serialize(buf []byte) int {
	offset := 0
	if d.longName != "" {
		units := encodeUcs2(d.longName)
		checksum := d.shortName.Checksum()
		total := lfnEntryCount(d.longName)

		for sequence := total; sequence >= 1; sequence-- {
			start := (sequence - 1) * lfnUnitsPerEntry
			end := start + lfnUnitsPerEntry
			if end > len(units) {
				end = len(units)
			}

			marker := uint8(0)
			if sequence == total {
				marker = lfnLastMarker
			}
			serializeLfnEntry(
				buf[offset:offset+DirentSize],
				uint8(sequence)|marker,
				units[start:end],
				checksum,
			)
			offset += DirentSize
		}
	}

	d.raw.Serialize(buf[offset : offset+DirentSize])
	return offset + DirentSize
}
