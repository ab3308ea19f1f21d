package driver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rifkyprayoga/usbfat/driver"
	"github.com/rifkyprayoga/usbfat/errors"
)

func TestByteBlockDeviceRoundTrip(t *testing.T) {
	device := driver.NewByteBlockDevice(make([]byte, 16*512), 512)
	require.NoError(t, device.Init())

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	require.NoError(t, device.Write(3*512, payload))

	readBack := make([]byte, 1024)
	require.NoError(t, device.Read(3*512, readBack))
	assert.Equal(t, payload, readBack)
}

func TestByteBlockDeviceEnforcesAlignment(t *testing.T) {
	device := driver.NewByteBlockDevice(make([]byte, 16*512), 512)

	assert.ErrorIs(t,
		device.Read(100, make([]byte, 512)), errors.ErrArgumentOutOfRange)
	assert.ErrorIs(t,
		device.Write(0, make([]byte, 100)), errors.ErrArgumentOutOfRange)
	assert.ErrorIs(t,
		device.Read(15*512, make([]byte, 1024)), errors.ErrArgumentOutOfRange)
}
