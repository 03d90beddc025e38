package types

import (
	"fmt"
	"strings"
)

// StorageClass identifies one group of storage devices handled by the same
// driver family.
type StorageClass int

// Storage classes in their fixed sweep order.
const (
	ClassIDE StorageClass = iota
	ClassUSB
	ClassSCSI
	ClassMMC
	ClassSATA

	// NumStorageClasses is the number of storage classes.
	NumStorageClasses
)

var storageClassNames = [NumStorageClasses]string{"ide", "usb", "scsi", "mmc", "sata"}

// String returns the uclass-style name of the class ("mmc", "usb", ...).
func (c StorageClass) String() string {
	if c < 0 || c >= NumStorageClasses {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return storageClassNames[c]
}

// ParseStorageClass converts a class name back to its StorageClass.
func ParseStorageClass(name string) (StorageClass, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range storageClassNames {
		if n == name {
			return StorageClass(i), nil
		}
	}
	return 0, fmt.Errorf("unknown storage class %q: %w", name, ErrNotFound)
}

// DeviceType is the media type reported by a block device.
type DeviceType uint8

const (
	DevTypeHardDisk DeviceType = 0x00
	DevTypeTape     DeviceType = 0x01
	DevTypeCDROM    DeviceType = 0x05
	DevTypeOpDisk   DeviceType = 0x07
	// DevTypeUnknown marks a device slot that exists but is not initialized.
	DevTypeUnknown DeviceType = 0xff
)

// ExternalType is the device type tag exposed to enumeration callers.
type ExternalType uint32

const (
	DevTypNet  ExternalType = 0x01
	DevTypStor ExternalType = 0x02

	DTStorIDE  ExternalType = 0x0010
	DTStorSCSI ExternalType = 0x0020
	DTStorUSB  ExternalType = 0x0040
	DTStorMMC  ExternalType = 0x0080
	DTStorSATA ExternalType = 0x0100
)

// ExternalType returns the storage tag for devices of this class.
func (c StorageClass) ExternalType() ExternalType {
	switch c {
	case ClassIDE:
		return DevTypStor | DTStorIDE
	case ClassUSB:
		return DevTypStor | DTStorUSB
	case ClassSCSI:
		return DevTypStor | DTStorSCSI
	case ClassMMC:
		return DevTypStor | DTStorMMC
	case ClassSATA:
		return DevTypStor | DTStorSATA
	}
	return DevTypStor
}

// Cookie identifies one device instance within its storage class. It is the
// continuation token of a storage enumeration sweep.
type Cookie struct {
	Class StorageClass
	Slot  int
}

// String returns the device label, e.g. "mmc1".
func (c Cookie) String() string {
	return fmt.Sprintf("%s%d", c.Class, c.Slot)
}

// DeviceInfo is filled in by each enumeration step. A nil Cookie asks the
// enumerator to (re)start the sweep.
type DeviceInfo struct {
	Cookie     *Cookie      `json:"cookie" yaml:"cookie"`
	Type       ExternalType `json:"type" yaml:"type"`
	BlockCount uint64       `json:"block_count" yaml:"block_count"`
	BlockSize  uint32       `json:"block_size" yaml:"block_size"`
}
