package fat32

import (
	"encoding/binary"
	"unicode/utf16"
)

// Long-file-name entry layout. Each 32-byte pseudo-entry carries 13 UCS-2
// code units spread over three runs, bound to its short entry by checksum.
const (
	// lfnUnitsPerEntry is how many UCS-2 units one LFN entry holds.
	lfnUnitsPerEntry = 13

	// lfnLastMarker is OR-ed into the sequence number of the logically
	// last entry, which is physically first.
	lfnLastMarker = 0x40

	// MaxLongNameLength bounds a long name, in UCS-2 code units.
	MaxLongNameLength = 255
)

// lfnUnitOffsets lists where each of the 13 units lives inside the entry.
var lfnUnitOffsets = [lfnUnitsPerEntry]int{
	1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30,
}

// encodeUcs2 converts a name to its UCS-2 code units.
func encodeUcs2(name string) []uint16 {
	return utf16.Encode([]rune(name))
}

// decodeUcs2 converts code units back to a string.
func decodeUcs2(units []uint16) string {
	return string(utf16.Decode(units))
}

// lfnEntryCount returns how many LFN entries a name needs.
func lfnEntryCount(name string) int {
	units := len(encodeUcs2(name))
	return (units + lfnUnitsPerEntry - 1) / lfnUnitsPerEntry
}

// serializeLfnEntry writes one 32-byte LFN entry. units holds at most 13
// code units; a short final run is terminated with 0x0000 and padded with
// 0xFFFF.
func serializeLfnEntry(data []byte, sequence uint8, units []uint16, checksum uint8) {
	data[0] = sequence
	data[11] = AttrLongName
	data[12] = 0
	data[13] = checksum
	// Bytes 26-27 are the start cluster field, always zero for LFN entries.
	data[26] = 0
	data[27] = 0

	for i, offset := range lfnUnitOffsets {
		var unit uint16
		switch {
		case i < len(units):
			unit = units[i]
		case i == len(units):
			unit = 0x0000
		default:
			unit = 0xFFFF
		}
		binary.LittleEndian.PutUint16(data[offset:offset+2], unit)
	}
}

// parseLfnEntry extracts the sequence byte, checksum, and name fragment of
// one LFN entry. Padding past the terminator is dropped.
func parseLfnEntry(data []byte) (sequence uint8, checksum uint8, units []uint16) {
	sequence = data[0]
	checksum = data[13]

	units = make([]uint16, 0, lfnUnitsPerEntry)
	for _, offset := range lfnUnitOffsets {
		unit := binary.LittleEndian.Uint16(data[offset : offset+2])
		if unit == 0x0000 {
			break
		}
		units = append(units, unit)
	}
	return sequence, checksum, units
}

// lfnAccumulator rebuilds a long name from the LFN run that precedes a
// short entry. Entries arrive in physical order, highest sequence first, so
// fragments are prepended.
type lfnAccumulator struct {
	units    []uint16
	checksum uint8
	active   bool
}

func (acc *lfnAccumulator) add(data []byte) {
	sequence, checksum, fragment := parseLfnEntry(data)
	if sequence&lfnLastMarker != 0 || !acc.active {
		// A fresh run; whatever was pending was orphaned.
		acc.units = acc.units[:0]
		acc.checksum = checksum
		acc.active = true
	}
	acc.units = append(fragment, acc.units...)
}

func (acc *lfnAccumulator) reset() {
	acc.units = acc.units[:0]
	acc.active = false
}

// finish closes the run against its short entry. It returns the long name
// and whether the checksum bound the run to this entry; on a mismatch the
// caller falls back to the short name.
func (acc *lfnAccumulator) finish(short ShortName) (string, bool) {
	defer acc.reset()
	if !acc.active || len(acc.units) == 0 {
		return "", true
	}
	if acc.checksum != short.Checksum() {
		return "", false
	}
	return decodeUcs2(acc.units), true
}
