// Package scsi implements the Bulk-Only Transport ("BBB") command framing
// used by USB mass storage devices, and a block device driver that speaks it
// over an injected bulk pipe pair.
package scsi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/rifkyprayoga/usbfat/errors"
)

const (
	// CommandBlockWrapperSize is the wire size of a CBW.
	CommandBlockWrapperSize = 31

	// CommandStatusWrapperSize is the wire size of a CSW.
	CommandStatusWrapperSize = 13

	// cbwSignature is "USBC" interpreted as a little-endian uint32.
	cbwSignature = 0x43425355

	// cswSignature is "USBS" interpreted as a little-endian uint32.
	cswSignature = 0x53425355
)

// CBW direction flag values. Bit 7 set means the data phase moves device to
// host.
const (
	DirectionOut = 0x00
	DirectionIn  = 0x80
)

// CSW status codes.
const (
	StatusPassed     = 0
	StatusFailed     = 1
	StatusPhaseError = 2
)

// CommandBlockWrapper frames a single SCSI command. Every field except the
// command block itself is little-endian on the wire.
type CommandBlockWrapper struct {
	Signature          uint32
	Tag                uint32
	DataTransferLength uint32
	Flags              uint8
	LUN                uint8
	CBLength           uint8
	CB                 [16]byte
}

// newWrapper builds a CBW for a command block of cbLength bytes. The tag is
// filled in by the device right before the wrapper goes on the wire.
func newWrapper(transferLength uint32, direction uint8, lun uint8, cbLength uint8) CommandBlockWrapper {
	return CommandBlockWrapper{
		Signature:          cbwSignature,
		DataTransferLength: transferLength,
		Flags:              direction,
		LUN:                lun,
		CBLength:           cbLength,
	}
}

// IsDataIn reports whether the data phase of this command moves device to
// host.
func (cbw *CommandBlockWrapper) IsDataIn() bool {
	return cbw.Flags&DirectionIn != 0
}

// Bytes serializes the wrapper into its 31-byte wire form.
func (cbw *CommandBlockWrapper) Bytes() []byte {
	buffer := make([]byte, CommandBlockWrapperSize)
	writer := bytewriter.New(buffer)

	// The struct is packed, so a single reflective write lays every field
	// down at its wire offset.
	binary.Write(writer, binary.LittleEndian, cbw)
	return buffer
}

// CommandStatusWrapper is the 13-byte status record that closes every
// command.
type CommandStatusWrapper struct {
	Signature   uint32
	Tag         uint32
	DataResidue uint32
	Status      uint8
}

// ParseCommandStatusWrapper decodes and validates a CSW received from the
// device. The tag is checked by the caller, which knows what it sent.
func ParseCommandStatusWrapper(data []byte) (CommandStatusWrapper, error) {
	var csw CommandStatusWrapper
	if len(data) != CommandStatusWrapperSize {
		return csw, errors.ErrScsi.WithMessage(
			fmt.Sprintf("CSW is %d bytes, want %d", len(data), CommandStatusWrapperSize),
		)
	}

	reader := bytes.NewReader(data)
	if err := binary.Read(reader, binary.LittleEndian, &csw); err != nil {
		return csw, errors.ErrScsi.WrapError(err)
	}
	if csw.Signature != cswSignature {
		return csw, errors.ErrScsi.WithMessage(
			fmt.Sprintf("bad CSW signature 0x%08x", csw.Signature),
		)
	}
	return csw, nil
}
