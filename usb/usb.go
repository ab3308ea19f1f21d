// Package usb declares the transport capability the storage stack is built
// on. Opening the device — enumeration, descriptor parsing, endpoint
// discovery, interface claiming — is the caller's job; the stack only needs a
// working bulk endpoint pair.
package usb

import "time"

// DefaultTransferTimeout is the timeout implementations should apply to each
// bulk transfer when the device config doesn't specify one.
const DefaultTransferTimeout = 21 * time.Second

// Communication is an open bulk pipe pair to a mass storage interface.
// Implementations own endpoint selection and timeouts.
//
// Both transfer methods return the number of bytes actually moved, which may
// be less than len(buffer) on a short transfer.
type Communication interface {
	// BulkOut sends data on the bulk-out endpoint.
	BulkOut(data []byte) (int, error)

	// BulkIn fills buffer from the bulk-in endpoint.
	BulkIn(buffer []byte) (int, error)

	Close() error
}

// ResetRecoverer is implemented by transports that can run the Bulk-Only
// reset recovery sequence. The SCSI layer uses it after a phase error or a
// timed-out transfer; without it, such failures are fatal for the operation.
type ResetRecoverer interface {
	// BulkOnlyMassStorageReset issues the class-specific Reset control
	// request to the mass storage interface.
	BulkOnlyMassStorageReset() error

	// ClearFeatureHalt clears the HALT feature on the given endpoint
	// address.
	ClearFeatureHalt(endpointAddress uint8) error
}

// DeviceConfig identifies a claimed mass storage interface and its endpoint
// pair. It is consumed by transport implementations and by the factory; the
// core never touches descriptors itself.
type DeviceConfig struct {
	VendorID        uint16
	ProductID       uint16
	InterfaceNumber uint8

	// InEndpoint and OutEndpoint are endpoint addresses, direction bit
	// included (e.g. 0x81 and 0x02).
	InEndpoint  uint8
	OutEndpoint uint8

	// LUN is the logical unit to address. Zero for almost every thumb drive.
	LUN uint8

	// Timeout bounds each bulk transfer. Zero means
	// [DefaultTransferTimeout].
	Timeout time.Duration
}

// TransferTimeout returns the configured timeout with the default applied.
func (cfg DeviceConfig) TransferTimeout() time.Duration {
	if cfg.Timeout <= 0 {
		return DefaultTransferTimeout
	}
	return cfg.Timeout
}
