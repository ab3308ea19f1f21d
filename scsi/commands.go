package scsi

import (
	"bytes"
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/rifkyprayoga/usbfat/errors"
)

// SCSI operation codes used by the Bulk-Only block device.
const (
	opTestUnitReady = 0x00
	opRequestSense  = 0x03
	opInquiry       = 0x12
	opModeSense6    = 0x1A
	opReadCapacity  = 0x25
	opRead10        = 0x28
	opWrite10       = 0x2A
)

const (
	// standardInquiryLength is the length of the standard INQUIRY response.
	standardInquiryLength = 36

	// requestSenseLength is the fixed-format sense data length we ask for.
	requestSenseLength = 18

	// readCapacityLength is the length of a READ CAPACITY(10) response.
	readCapacityLength = 8

	// modeSenseLength is how much of the mode parameter list we care about.
	modeSenseLength = 192
)

// testUnitReady has no data phase; the CSW status is the whole answer.
func testUnitReady(lun uint8) CommandBlockWrapper {
	cbw := newWrapper(0, DirectionOut, lun, 6)
	cbw.CB[0] = opTestUnitReady
	return cbw
}

func inquiry(lun uint8) CommandBlockWrapper {
	cbw := newWrapper(standardInquiryLength, DirectionIn, lun, 6)
	cbw.CB[0] = opInquiry
	cbw.CB[4] = standardInquiryLength
	return cbw
}

func requestSense(lun uint8) CommandBlockWrapper {
	cbw := newWrapper(requestSenseLength, DirectionIn, lun, 6)
	cbw.CB[0] = opRequestSense
	cbw.CB[4] = requestSenseLength
	return cbw
}

func readCapacity(lun uint8) CommandBlockWrapper {
	cbw := newWrapper(readCapacityLength, DirectionIn, lun, 10)
	cbw.CB[0] = opReadCapacity
	return cbw
}

// modeSense asks for a single mode page; the block device requests page
// 0x1A on a best-effort basis during init.
func modeSense(lun uint8, page uint8) CommandBlockWrapper {
	cbw := newWrapper(modeSenseLength, DirectionIn, lun, 6)
	cbw.CB[0] = opModeSense6
	cbw.CB[2] = page
	cbw.CB[4] = modeSenseLength
	return cbw
}

// read10 and write10 address whole blocks. The LBA and transfer length in the
// command block are big-endian, unlike the CBW that carries them.
func read10(lun uint8, lba uint32, blocks uint16, blockSize uint32) CommandBlockWrapper {
	cbw := newWrapper(uint32(blocks)*blockSize, DirectionIn, lun, 10)
	cbw.CB[0] = opRead10
	putBlockRange(cbw.CB[:], lba, blocks)
	return cbw
}

func write10(lun uint8, lba uint32, blocks uint16, blockSize uint32) CommandBlockWrapper {
	cbw := newWrapper(uint32(blocks)*blockSize, DirectionOut, lun, 10)
	cbw.CB[0] = opWrite10
	putBlockRange(cbw.CB[:], lba, blocks)
	return cbw
}

func putBlockRange(cb []byte, lba uint32, blocks uint16) {
	cb[2] = byte(lba >> 24)
	cb[3] = byte(lba >> 16)
	cb[4] = byte(lba >> 8)
	cb[5] = byte(lba)
	cb[7] = byte(blocks >> 8)
	cb[8] = byte(blocks)
}

// InquiryResponse is the interesting prefix of standard INQUIRY data.
type InquiryResponse struct {
	PeripheralQualifierAndType uint8
	Removable                  uint8
	Version                    uint8
	ResponseDataFormat         uint8
	AdditionalLength           uint8
	Reserved                   [3]byte
	VendorIdentification       [8]byte
	ProductIdentification      [16]byte
	ProductRevision            [4]byte
}

// PeripheralDeviceType extracts the low five bits of byte 0; 0x00 is a
// direct-access block device.
func (r *InquiryResponse) PeripheralDeviceType() uint8 {
	return r.PeripheralQualifierAndType & 0x1F
}

// Vendor returns the vendor identification with trailing padding removed.
func (r *InquiryResponse) Vendor() string {
	return string(bytes.TrimRight(r.VendorIdentification[:], " \x00"))
}

// Product returns the product identification with trailing padding removed.
func (r *InquiryResponse) Product() string {
	return string(bytes.TrimRight(r.ProductIdentification[:], " \x00"))
}

func parseInquiryResponse(data []byte) (InquiryResponse, error) {
	var response InquiryResponse
	if len(data) < standardInquiryLength {
		return response, errors.ErrScsi.WithMessage("short INQUIRY response")
	}
	if err := restruct.Unpack(data[:standardInquiryLength], binary.LittleEndian, &response); err != nil {
		return response, errors.ErrScsi.WrapError(err)
	}
	return response, nil
}

// SenseData carries the fixed-format sense bytes fetched with REQUEST SENSE
// after a failed command.
type SenseData struct {
	Key                          uint8
	AdditionalSenseCode          uint8
	AdditionalSenseCodeQualifier uint8
}

func parseSenseData(data []byte) (SenseData, bool) {
	if len(data) < 14 {
		return SenseData{}, false
	}
	return SenseData{
		Key:                          data[2] & 0x0F,
		AdditionalSenseCode:          data[12],
		AdditionalSenseCodeQualifier: data[13],
	}, true
}
