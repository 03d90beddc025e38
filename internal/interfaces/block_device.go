// File: internal/interfaces/block_device.go
package interfaces

import (
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// BlockDeviceReader provides methods for reading from block devices
type BlockDeviceReader interface {
	// ReadBlocks reads count blocks starting at block start into buf and
	// returns the number of blocks read
	ReadBlocks(start uint64, count uint32, buf []byte) (uint32, error)

	// BlockSize returns the size of a single block in bytes
	BlockSize() uint32

	// BlockCount returns the total number of blocks on the device
	BlockCount() uint64
}

// BlockDeviceWriter provides methods for writing to block devices
type BlockDeviceWriter interface {
	// WriteBlocks writes count blocks from buf starting at block start and
	// returns the number of blocks written
	WriteBlocks(start uint64, count uint32, buf []byte) (uint32, error)
}

// BlockDeviceInfo provides information about a block device
type BlockDeviceInfo interface {
	// Name returns the device label, e.g. "mmc0"
	Name() string

	// Type returns the media type; DevTypeUnknown means the slot is
	// populated but the device is not initialized
	Type() types.DeviceType
}

// BlockDevice represents a complete block device interface
type BlockDevice interface {
	BlockDeviceReader
	BlockDeviceWriter
	BlockDeviceInfo
}

// BlockDriver is the per-class device table consumed by the storage
// enumerator and the block bootdev hunters
type BlockDriver interface {
	// Device returns the device in slot index of class, or nil when the
	// slot is empty
	Device(class types.StorageClass, index int) BlockDevice

	// MaxDevices returns the number of slots configured for class
	MaxDevices(class types.StorageClass) int

	// Probe scans the bus behind class so that its devices become visible
	Probe(class types.StorageClass) error
}
