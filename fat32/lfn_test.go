package fat32

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortNameChecksum(t *testing.T) {
	short := MustShortName("HELLO", "TXT")
	assert.EqualValues(t, 0xF1, short.Checksum())
}

func TestLfnEntryRoundTrip(t *testing.T) {
	units := encodeUcs2("lowercase.txt")
	require.Len(t, units, 13)

	buf := make([]byte, DirentSize)
	serializeLfnEntry(buf, 1|lfnLastMarker, units, 0xAB)

	sequence, checksum, parsed := parseLfnEntry(buf)
	assert.EqualValues(t, 1|lfnLastMarker, sequence)
	assert.EqualValues(t, 0xAB, checksum)
	assert.Equal(t, units, parsed)
}

func TestLfnEntryPadsShortFinalRun(t *testing.T) {
	units := encodeUcs2("abc") // terminator plus 0xFFFF padding follow

	buf := make([]byte, DirentSize)
	serializeLfnEntry(buf, 1|lfnLastMarker, units, 0)

	// Unit 3 is the terminator, everything after is fill.
	assert.Equal(t, []byte{0x00, 0x00}, buf[7:9])
	assert.Equal(t, []byte{0xFF, 0xFF}, buf[9:11])

	_, _, parsed := parseLfnEntry(buf)
	assert.Equal(t, units, parsed)
}

// serializeAndParse pushes a Dirent through its on-disk form and back
// through the LFN accumulator, the way directory init does.
func serializeAndParse(t *testing.T, dirent *Dirent) (string, bool) {
	t.Helper()

	buf := make([]byte, dirent.entryCount()*DirentSize)
	require.Equal(t, len(buf), dirent.serialize(buf))

	var acc lfnAccumulator
	for offset := 0; offset < len(buf)-DirentSize; offset += DirentSize {
		raw := ParseRawDirent(buf[offset : offset+DirentSize])
		require.True(t, raw.IsLongName(), "expected an LFN run before the short entry")
		acc.add(buf[offset : offset+DirentSize])
	}
	short := ParseRawDirent(buf[len(buf)-DirentSize:])
	return acc.finish(ShortNameFromBytes(short.ShortNameBytes()))
}

func TestDirentSerializeParseRoundTrip(t *testing.T) {
	names := []string{
		"hello.txt",
		"exactly13char",
		"a name with spaces and length.data",
		"中文名.txt",
	}
	for _, name := range names {
		dirent := newDirent(name, GenerateShortName(name, nil), false, fatEpoch)
		parsed, ok := serializeAndParse(t, dirent)
		assert.True(t, ok, "%q: checksum must bind", name)
		assert.Equal(t, name, parsed)
	}
}

func TestLfnEntryCountMatchesContract(t *testing.T) {
	name := strings.Repeat("x", 200)
	dirent := newDirent(name, MustShortName("XXXXXX~1", ""), false, fatEpoch)

	// ceil(200/13) long entries plus the short one.
	assert.Equal(t, 16+1, dirent.entryCount())
}

func TestChecksumMismatchDropsLongName(t *testing.T) {
	name := "plausible.doc"
	dirent := newDirent(name, GenerateShortName(name, nil), false, fatEpoch)

	buf := make([]byte, dirent.entryCount()*DirentSize)
	dirent.serialize(buf)
	buf[13] ^= 0xFF // corrupt the checksum of the first LFN entry

	var acc lfnAccumulator
	for offset := 0; offset < len(buf)-DirentSize; offset += DirentSize {
		acc.add(buf[offset : offset+DirentSize])
	}
	short := ParseRawDirent(buf[len(buf)-DirentSize:])
	longName, ok := acc.finish(ShortNameFromBytes(short.ShortNameBytes()))

	assert.False(t, ok)
	assert.Empty(t, longName)
}

func TestDeletedEntryClearsPendingRun(t *testing.T) {
	name := "orphan.bin"
	dirent := newDirent(name, GenerateShortName(name, nil), false, fatEpoch)

	buf := make([]byte, dirent.entryCount()*DirentSize)
	dirent.serialize(buf)

	var acc lfnAccumulator
	acc.add(buf[0:DirentSize])
	acc.reset() // what the parser does on a 0xE5 slot

	longName, ok := acc.finish(MustShortName("OTHER", "BIN"))
	assert.True(t, ok, "no pending run means nothing to mismatch")
	assert.Empty(t, longName)
}
