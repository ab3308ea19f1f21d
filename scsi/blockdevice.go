package scsi

import (
	goerrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rifkyprayoga/usbfat"
	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
	"github.com/rifkyprayoga/usbfat/usb"
)

var _ driver.BlockDeviceDriver = (*BlockDevice)(nil)

// testUnitReadyAttempts bounds how long Init waits for a unit that reports
// "becoming ready" sense data before giving up.
const testUnitReadyAttempts = 20

// BlockDevice speaks SCSI over the Bulk-Only Transport and exposes
// block-aligned byte I/O. It implements
// [github.com/rifkyprayoga/usbfat/driver.BlockDeviceDriver].
//
// A BlockDevice is single-writer by contract: the endpoint pair is exclusive
// per logical unit and tags are monotonic, so concurrent callers would
// corrupt the CBW/CSW framing.
type BlockDevice struct {
	comm   usb.Communication
	logger *zap.Logger
	lun    uint8

	tag uint32

	initialized      bool
	blockSize        uint32
	lastBlockAddress uint32
	inquiry          InquiryResponse
}

// NewBlockDevice wraps an open bulk pipe pair. Call Init before the first
// Read or Write.
func NewBlockDevice(comm usb.Communication, cfg usbfat.Config) *BlockDevice {
	cfg = cfg.Normalized()
	return &BlockDevice{
		comm:   comm,
		logger: cfg.Logger,
		lun:    cfg.LUN,
	}
}

// Init brings the unit to a usable state: waits for TEST UNIT READY, checks
// INQUIRY for a direct-access device, caches the capacity, and reads mode
// page 0x1A on a best-effort basis. It is idempotent.
func (dev *BlockDevice) Init() error {
	if dev.initialized {
		return nil
	}

	if err := dev.waitUnitReady(); err != nil {
		return err
	}

	inquiryData := make([]byte, standardInquiryLength)
	if err := dev.runCommand(inquiry(dev.lun), inquiryData); err != nil {
		return err
	}
	response, err := parseInquiryResponse(inquiryData)
	if err != nil {
		return err
	}
	if response.PeripheralDeviceType() != 0x00 {
		return errors.ErrUnsupported.WithMessage(
			fmt.Sprintf(
				"peripheral device type 0x%02x is not direct-access",
				response.PeripheralDeviceType(),
			),
		)
	}
	dev.inquiry = response

	capacityData := make([]byte, readCapacityLength)
	if err := dev.runCommand(readCapacity(dev.lun), capacityData); err != nil {
		return err
	}
	// READ CAPACITY data is big-endian: last LBA, then block length.
	dev.lastBlockAddress = uint32(capacityData[0])<<24 | uint32(capacityData[1])<<16 |
		uint32(capacityData[2])<<8 | uint32(capacityData[3])
	dev.blockSize = uint32(capacityData[4])<<24 | uint32(capacityData[5])<<16 |
		uint32(capacityData[6])<<8 | uint32(capacityData[7])
	if dev.blockSize == 0 {
		return errors.ErrScsi.WithMessage("device reports a zero block size")
	}

	modeData := make([]byte, modeSenseLength)
	if err := dev.runCommand(modeSense(dev.lun, 0x1A), modeData); err != nil {
		dev.logger.Debug("mode sense for page 0x1a failed", zap.Error(err))
	}

	dev.initialized = true
	dev.logger.Debug(
		"scsi block device ready",
		zap.String("vendor", dev.inquiry.Vendor()),
		zap.String("product", dev.inquiry.Product()),
		zap.Uint32("block_size", dev.blockSize),
		zap.Uint32("last_lba", dev.lastBlockAddress),
	)
	return nil
}

func (dev *BlockDevice) waitUnitReady() error {
	var lastErr error
	for attempt := 0; attempt < testUnitReadyAttempts; attempt++ {
		lastErr = dev.runCommand(testUnitReady(dev.lun), nil)
		if lastErr == nil {
			return nil
		}
		// Anything other than a failing CSW (e.g. a dead transport) won't
		// get better by asking again.
		if !goerrors.Is(lastErr, errors.ErrScsi) {
			return lastErr
		}
	}
	return errors.ErrScsi.WithMessage("unit not ready").WrapError(lastErr)
}

// Read fills buffer starting at the given byte offset. The offset and the
// buffer length must be multiples of the block size.
func (dev *BlockDevice) Read(deviceOffset int64, buffer []byte) error {
	lba, blocks, err := dev.blockRange(deviceOffset, len(buffer))
	if err != nil {
		return err
	}
	return dev.runCommand(read10(dev.lun, lba, blocks, dev.blockSize), buffer)
}

// Write stores buffer starting at the given byte offset, under the same
// alignment rules as Read.
func (dev *BlockDevice) Write(deviceOffset int64, buffer []byte) error {
	lba, blocks, err := dev.blockRange(deviceOffset, len(buffer))
	if err != nil {
		return err
	}
	return dev.runCommand(write10(dev.lun, lba, blocks, dev.blockSize), buffer)
}

// BlockSize returns the block size cached by Init.
func (dev *BlockDevice) BlockSize() int {
	return int(dev.blockSize)
}

// Blocks returns the device capacity in blocks, cached by Init.
func (dev *BlockDevice) Blocks() int64 {
	return int64(dev.lastBlockAddress) + 1
}

// Inquiry returns the INQUIRY response cached by Init.
func (dev *BlockDevice) Inquiry() InquiryResponse {
	return dev.inquiry
}

// Close releases the underlying transport.
func (dev *BlockDevice) Close() error {
	return dev.comm.Close()
}

func (dev *BlockDevice) blockRange(deviceOffset int64, length int) (uint32, uint16, error) {
	blockSize := int64(dev.blockSize)
	if !dev.initialized || blockSize == 0 {
		return 0, 0, errors.ErrIOFailed.WithMessage("device not initialized")
	}
	if deviceOffset%blockSize != 0 || int64(length)%blockSize != 0 {
		return 0, 0, errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"access of %d bytes at %d is not aligned to the %d-byte block size",
				length,
				deviceOffset,
				blockSize,
			),
		)
	}
	blocks := int64(length) / blockSize
	if blocks > 0xFFFF {
		return 0, 0, errors.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("%d blocks exceeds a single READ(10)/WRITE(10) transfer", blocks),
		)
	}
	return uint32(deviceOffset / blockSize), uint16(blocks), nil
}

func (dev *BlockDevice) nextTag() uint32 {
	dev.tag++
	return dev.tag
}

// runCommand sends one framed command with its data phase and consumes the
// CSW. A phase error or transport failure triggers the reset recovery
// sequence and a single retry; a failing status is reported with whatever
// sense data the unit will give up.
func (dev *BlockDevice) runCommand(cbw CommandBlockWrapper, data []byte) error {
	err := dev.runCommandOnce(&cbw, data)
	if err == nil {
		return nil
	}
	if !goerrors.Is(err, errRecoverable) {
		return err
	}

	dev.logger.Warn("bulk transfer disturbed, running reset recovery", zap.Error(err))
	if resetErr := dev.bulkReset(); resetErr != nil {
		return err
	}
	return dev.runCommandOnce(&cbw, data)
}

// errRecoverable tags failures that warrant one reset-and-retry pass.
const errRecoverable = errors.StorageError("recoverable bulk failure")

func (dev *BlockDevice) runCommandOnce(cbw *CommandBlockWrapper, data []byte) error {
	cbw.Tag = dev.nextTag()

	if err := dev.bulkOutAll(cbw.Bytes()); err != nil {
		return errRecoverable.WrapError(
			errors.ErrTransport.WithMessage("sending CBW").WrapError(err),
		)
	}

	if len(data) > 0 {
		var err error
		var moved int
		if cbw.IsDataIn() {
			moved, err = dev.bulkInAll(data)
		} else {
			err = dev.bulkOutAll(data)
			moved = len(data)
		}
		if err != nil {
			return errRecoverable.WrapError(
				errors.ErrTransport.WithMessage("data phase").WrapError(err),
			)
		}
		if moved < len(data) {
			return errors.ErrTransport.WithMessage(
				fmt.Sprintf("short data phase: %d of %d bytes", moved, len(data)),
			)
		}
	}

	cswBytes := make([]byte, CommandStatusWrapperSize)
	if _, err := dev.bulkInAll(cswBytes); err != nil {
		return errRecoverable.WrapError(
			errors.ErrTransport.WithMessage("receiving CSW").WrapError(err),
		)
	}
	csw, err := ParseCommandStatusWrapper(cswBytes)
	if err != nil {
		return err
	}
	if csw.Tag != cbw.Tag {
		return errors.ErrScsi.WithMessage(
			fmt.Sprintf("CSW tag 0x%08x does not match CBW tag 0x%08x", csw.Tag, cbw.Tag),
		)
	}

	switch csw.Status {
	case StatusPassed:
		if cbw.IsDataIn() && csw.DataResidue > 0 {
			return errors.ErrTransport.WithMessage(
				fmt.Sprintf("short read: %d bytes of residue", csw.DataResidue),
			)
		}
		return nil
	case StatusFailed:
		return dev.commandFailed(cbw)
	case StatusPhaseError:
		return errRecoverable.WrapError(
			errors.ErrScsi.WithMessage("phase error"),
		)
	default:
		return errors.ErrScsi.WithMessage(
			fmt.Sprintf("unknown CSW status %d", csw.Status),
		)
	}
}

// commandFailed turns a failing CSW into an error, fetching sense data when
// the unit provides it.
func (dev *BlockDevice) commandFailed(cbw *CommandBlockWrapper) error {
	senseBytes := make([]byte, requestSenseLength)
	senseCbw := requestSense(dev.lun)
	if err := dev.runCommandOnce(&senseCbw, senseBytes); err != nil {
		return errors.ErrScsi.WithMessage(
			fmt.Sprintf("command 0x%02x failed, sense unavailable", cbw.CB[0]),
		)
	}
	sense, ok := parseSenseData(senseBytes)
	if !ok {
		return errors.ErrScsi.WithMessage(
			fmt.Sprintf("command 0x%02x failed, sense unparsable", cbw.CB[0]),
		)
	}
	return errors.ErrScsi.WithMessage(
		fmt.Sprintf(
			"command 0x%02x failed: sense key 0x%02x asc 0x%02x ascq 0x%02x",
			cbw.CB[0],
			sense.Key,
			sense.AdditionalSenseCode,
			sense.AdditionalSenseCodeQualifier,
		),
	)
}

// bulkReset runs the Bulk-Only reset recovery sequence: the class-specific
// reset request followed by clearing HALT on both endpoints. Transports that
// can't do this simply don't implement [usb.ResetRecoverer], making the
// failure final.
func (dev *BlockDevice) bulkReset() error {
	recoverer, ok := dev.comm.(usb.ResetRecoverer)
	if !ok {
		return errors.ErrTransport.WithMessage("transport cannot run reset recovery")
	}
	if err := recoverer.BulkOnlyMassStorageReset(); err != nil {
		return errors.ErrTransport.WrapError(err)
	}
	if err := recoverer.ClearFeatureHalt(usbInEndpointMarker); err != nil {
		return errors.ErrTransport.WrapError(err)
	}
	if err := recoverer.ClearFeatureHalt(usbOutEndpointMarker); err != nil {
		return errors.ErrTransport.WrapError(err)
	}
	return nil
}

// The recoverer knows its own endpoint addresses; these markers just tell it
// which direction to clear.
const (
	usbInEndpointMarker  = 0x80
	usbOutEndpointMarker = 0x00
)

func (dev *BlockDevice) bulkOutAll(data []byte) error {
	sent := 0
	for sent < len(data) {
		n, err := dev.comm.BulkOut(data[sent:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return errors.ErrTransport.WithMessage("bulk-out transferred zero bytes")
		}
		sent += n
	}
	return nil
}

func (dev *BlockDevice) bulkInAll(buffer []byte) (int, error) {
	received := 0
	for received < len(buffer) {
		n, err := dev.comm.BulkIn(buffer[received:])
		if err != nil {
			return received, err
		}
		if n <= 0 {
			break
		}
		received += n
	}
	return received, nil
}
