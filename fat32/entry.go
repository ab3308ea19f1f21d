package fat32

import (
	"encoding/binary"
	"time"
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// Attribute flags of a directory entry.
const (
	AttrReadOnly    = 0x01
	AttrHidden      = 0x02
	AttrSystem      = 0x04
	AttrVolumeLabel = 0x08
	AttrDirectory   = 0x10
	AttrArchive     = 0x20

	// AttrLongName is the combination that marks a long-file-name entry.
	// Matching masks out the two reserved high bits first.
	AttrLongName     = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
	attrLongNameMask = 0x3F
)

// deletedMarker in byte 0 of an entry means the slot was freed; a 0 byte
// means the slot and everything after it was never used.
const deletedMarker = 0xE5

// kanjiEscape in byte 0 stands for a literal 0xE5 first name byte.
const kanjiEscape = 0x05

// RawDirent is the on-disk representation of one 32-byte directory entry,
// broken into its fields.
type RawDirent struct {
	Name             [8]byte
	Extension        [3]byte
	Attributes       uint8
	NTReserved       uint8
	CreatedTenths    uint8
	CreatedTime      uint16
	CreatedDate      uint16
	LastAccessedDate uint16
	FirstClusterHigh uint16
	LastModifiedTime uint16
	LastModifiedDate uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

// ParseRawDirent deserializes a 32-byte slot.
func ParseRawDirent(data []byte) RawDirent {
	dirent := RawDirent{
		Attributes:       data[11],
		NTReserved:       data[12],
		CreatedTenths:    data[13],
		CreatedTime:      binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:      binary.LittleEndian.Uint16(data[16:18]),
		LastAccessedDate: binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh: binary.LittleEndian.Uint16(data[20:22]),
		LastModifiedTime: binary.LittleEndian.Uint16(data[22:24]),
		LastModifiedDate: binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:  binary.LittleEndian.Uint16(data[26:28]),
		FileSize:         binary.LittleEndian.Uint32(data[28:32]),
	}
	copy(dirent.Name[:], data[0:8])
	copy(dirent.Extension[:], data[8:11])
	return dirent
}

// Serialize writes the entry into a 32-byte slot.
func (d *RawDirent) Serialize(data []byte) {
	copy(data[0:8], d.Name[:])
	copy(data[8:11], d.Extension[:])
	data[11] = d.Attributes
	data[12] = d.NTReserved
	data[13] = d.CreatedTenths
	binary.LittleEndian.PutUint16(data[14:16], d.CreatedTime)
	binary.LittleEndian.PutUint16(data[16:18], d.CreatedDate)
	binary.LittleEndian.PutUint16(data[18:20], d.LastAccessedDate)
	binary.LittleEndian.PutUint16(data[20:22], d.FirstClusterHigh)
	binary.LittleEndian.PutUint16(data[22:24], d.LastModifiedTime)
	binary.LittleEndian.PutUint16(data[24:26], d.LastModifiedDate)
	binary.LittleEndian.PutUint16(data[26:28], d.FirstClusterLow)
	binary.LittleEndian.PutUint32(data[28:32], d.FileSize)
}

func (d *RawDirent) IsFree() bool {
	return d.Name[0] == 0
}

func (d *RawDirent) IsDeleted() bool {
	return d.Name[0] == deletedMarker
}

func (d *RawDirent) IsLongName() bool {
	return d.Attributes&attrLongNameMask == AttrLongName
}

func (d *RawDirent) IsDirectory() bool {
	return d.Attributes&AttrDirectory != 0
}

func (d *RawDirent) IsVolumeLabel() bool {
	return !d.IsLongName() && d.Attributes&AttrVolumeLabel != 0
}

// FirstCluster joins the split cluster field. Zero means no clusters are
// allocated yet.
func (d *RawDirent) FirstCluster() uint32 {
	return uint32(d.FirstClusterHigh)<<16 | uint32(d.FirstClusterLow)
}

func (d *RawDirent) SetFirstCluster(cluster uint32) {
	d.FirstClusterHigh = uint16(cluster >> 16)
	d.FirstClusterLow = uint16(cluster)
}

// ShortNameBytes returns the 11 name bytes as stored on disk.
func (d *RawDirent) ShortNameBytes() [11]byte {
	var name [11]byte
	copy(name[0:8], d.Name[:])
	copy(name[8:11], d.Extension[:])
	return name
}

// -----------------------------------------------------------------------------
// DOS timestamps

// fatEpoch is the earliest representable FAT timestamp, 1980-01-01 00:00:00
// local time.
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.Local)

// DateFromDos converts the on-disk date encoding into a time.Time at
// midnight local time.
func DateFromDos(value uint16) time.Time {
	day := int(value & 0x1F)
	month := time.Month((value >> 5) & 0x0F)
	year := 1980 + int(value>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

// TimestampFromDos converts a date+time pair, plus the optional tenths
// byte, into a time.Time. The tenths byte carries 0-199 units of 10 ms.
func TimestampFromDos(datePart, timePart uint16, tenths uint8) time.Time {
	seconds := int(timePart&0x1F) * 2
	minutes := int((timePart >> 5) & 0x3F)
	hours := int(timePart >> 11)

	seconds += int(tenths) / 100
	nanoseconds := (int(tenths) % 100) * int(10*time.Millisecond)

	date := DateFromDos(datePart)
	return time.Date(
		date.Year(), date.Month(), date.Day(),
		hours, minutes, seconds, nanoseconds,
		time.Local,
	)
}

// DosFromTimestamp splits a time.Time into the on-disk date, time, and
// tenths encodings. Times before the FAT epoch clamp to it.
func DosFromTimestamp(t time.Time) (datePart, timePart uint16, tenths uint8) {
	t = t.Local()
	if t.Before(fatEpoch) {
		t = fatEpoch
	}
	datePart = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timePart = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	tenths = uint8((t.Second()%2)*100 + t.Nanosecond()/int(10*time.Millisecond))
	return datePart, timePart, tenths
}
