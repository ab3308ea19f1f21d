package scsi_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/errors"
	"github.com/rifkyprayoga/usbfat/scsi"
)

// fakeTransport emulates the device side of the Bulk-Only Transport over a
// byte-slice disk, one CBW/data/CSW exchange at a time.
type fakeTransport struct {
	t         *testing.T
	backing   []byte
	blockSize uint32

	// Exchange state for the command in flight.
	tag            uint32
	opcode         uint8
	lba            uint32
	blocks         uint16
	transferLength uint32
	dataIn         []byte
	dataOutLeft    uint32
	cswPending     bool

	// Fault injection and bookkeeping.
	phaseErrors    int
	notReadyChecks int
	resetCalls     int
	clearHaltCalls int
}

func newFakeTransport(t *testing.T, totalBlocks int) *fakeTransport {
	return &fakeTransport{
		t:         t,
		backing:   make([]byte, totalBlocks*512),
		blockSize: 512,
	}
}

func (ft *fakeTransport) Close() error { return nil }

func (ft *fakeTransport) BulkOnlyMassStorageReset() error {
	ft.resetCalls++
	return nil
}

func (ft *fakeTransport) ClearFeatureHalt(uint8) error {
	ft.clearHaltCalls++
	return nil
}

func (ft *fakeTransport) BulkOut(data []byte) (int, error) {
	if ft.dataOutLeft > 0 {
		// WRITE(10) data phase.
		n := uint32(len(data))
		require.LessOrEqual(ft.t, n, ft.dataOutLeft, "device got more data than announced")
		start := int64(ft.lba)*int64(ft.blockSize) + int64(ft.transferLength-ft.dataOutLeft)
		copy(ft.backing[start:], data)
		ft.dataOutLeft -= n
		if ft.dataOutLeft == 0 {
			ft.cswPending = true
		}
		return len(data), nil
	}

	require.Len(ft.t, data, scsi.CommandBlockWrapperSize, "expected a CBW")
	require.Equal(ft.t, []byte("USBC"), data[0:4], "bad CBW signature")
	ft.tag = binary.LittleEndian.Uint32(data[4:8])
	ft.transferLength = binary.LittleEndian.Uint32(data[8:12])
	cb := data[15:31]
	ft.opcode = cb[0]
	ft.lba = binary.BigEndian.Uint32(cb[2:6])
	ft.blocks = binary.BigEndian.Uint16(cb[7:9])
	ft.prepareResponse(cb)
	return len(data), nil
}

func (ft *fakeTransport) prepareResponse(cb []byte) {
	ft.dataIn = nil
	ft.dataOutLeft = 0
	ft.cswPending = true

	switch ft.opcode {
	case 0x00: // TEST UNIT READY
	case 0x12: // INQUIRY
		inquiry := make([]byte, ft.transferLength)
		inquiry[0] = 0x00 // direct access
		copy(inquiry[8:16], "GOFAT   ")
		copy(inquiry[16:32], "FAKE DISK       ")
		ft.dataIn = inquiry
	case 0x25: // READ CAPACITY(10)
		capacity := make([]byte, 8)
		lastLBA := uint32(len(ft.backing))/ft.blockSize - 1
		binary.BigEndian.PutUint32(capacity[0:4], lastLBA)
		binary.BigEndian.PutUint32(capacity[4:8], ft.blockSize)
		ft.dataIn = capacity
	case 0x1A: // MODE SENSE(6)
		ft.dataIn = make([]byte, ft.transferLength)
	case 0x03: // REQUEST SENSE
		sense := make([]byte, ft.transferLength)
		sense[0] = 0x70
		sense[2] = 0x02 // not ready
		sense[12] = 0x04
		ft.dataIn = sense
	case 0x28: // READ(10)
		start := int64(ft.lba) * int64(ft.blockSize)
		length := int64(ft.blocks) * int64(ft.blockSize)
		ft.dataIn = ft.backing[start : start+length]
	case 0x2A: // WRITE(10)
		ft.dataOutLeft = ft.transferLength
		ft.cswPending = false
	default:
		ft.t.Fatalf("fake transport got unexpected opcode 0x%02x", cb[0])
	}
}

func (ft *fakeTransport) BulkIn(buffer []byte) (int, error) {
	if len(ft.dataIn) > 0 {
		n := copy(buffer, ft.dataIn)
		ft.dataIn = ft.dataIn[n:]
		return n, nil
	}

	require.True(ft.t, ft.cswPending, "host read with no response pending")
	require.Len(ft.t, buffer, scsi.CommandStatusWrapperSize, "expected a CSW read")
	ft.cswPending = false

	status := byte(0)
	if ft.phaseErrors > 0 && ft.opcode != 0x03 {
		ft.phaseErrors--
		status = 2
	} else if ft.notReadyChecks > 0 && ft.opcode == 0x00 {
		ft.notReadyChecks--
		status = 1
	}

	copy(buffer[0:4], "USBS")
	binary.LittleEndian.PutUint32(buffer[4:8], ft.tag)
	binary.LittleEndian.PutUint32(buffer[8:12], 0)
	buffer[12] = status
	return scsi.CommandStatusWrapperSize, nil
}

func newReadyDevice(t *testing.T, ft *fakeTransport) *scsi.BlockDevice {
	dev := scsi.NewBlockDevice(ft, usbfat.Config{})
	require.NoError(t, dev.Init())
	return dev
}

func TestInitCachesGeometry(t *testing.T) {
	ft := newFakeTransport(t, 128)
	dev := newReadyDevice(t, ft)

	assert.EqualValues(t, 512, dev.BlockSize())
	assert.EqualValues(t, 128, dev.Blocks())
	assert.Equal(t, "GOFAT", dev.Inquiry().Vendor())
	assert.Equal(t, "FAKE DISK", dev.Inquiry().Product())

	// Init is idempotent and must not rerun the command sequence.
	require.NoError(t, dev.Init())
}

func TestInitRetriesWhileUnitNotReady(t *testing.T) {
	ft := newFakeTransport(t, 128)
	ft.notReadyChecks = 3
	dev := newReadyDevice(t, ft)

	assert.EqualValues(t, 512, dev.BlockSize())
	assert.Zero(t, ft.notReadyChecks, "not all TEST UNIT READY retries consumed")
}

func TestReadWriteRoundTrip(t *testing.T) {
	ft := newFakeTransport(t, 128)
	dev := newReadyDevice(t, ft)

	payload := bytes.Repeat([]byte("abcdefgh"), 512/8*3)
	require.NoError(t, dev.Write(2*512, payload))

	readBack := make([]byte, len(payload))
	require.NoError(t, dev.Read(2*512, readBack))
	assert.Equal(t, payload, readBack)

	// The data must have landed at the addressed blocks of the fake disk.
	assert.Equal(t, payload, ft.backing[2*512:2*512+len(payload)])
}

func TestUnalignedAccessRejected(t *testing.T) {
	ft := newFakeTransport(t, 128)
	dev := newReadyDevice(t, ft)

	err := dev.Read(100, make([]byte, 512))
	assert.ErrorIs(t, err, errors.ErrArgumentOutOfRange)

	err = dev.Write(512, make([]byte, 100))
	assert.ErrorIs(t, err, errors.ErrArgumentOutOfRange)
}

func TestPhaseErrorTriggersResetRecovery(t *testing.T) {
	ft := newFakeTransport(t, 128)
	dev := newReadyDevice(t, ft)

	ft.phaseErrors = 1
	readBack := make([]byte, 512)
	require.NoError(t, dev.Read(0, readBack))

	assert.Equal(t, 1, ft.resetCalls, "reset request not issued")
	assert.Equal(t, 2, ft.clearHaltCalls, "both endpoints should be cleared")
}
