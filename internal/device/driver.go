package device

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Driver holds the device slots of every storage class. It implements
// interfaces.BlockDriver.
type Driver struct {
	slots      [types.NumStorageClasses][]interfaces.BlockDevice
	needsProbe [types.NumStorageClasses]bool
	probed     [types.NumStorageClasses]bool
	logger     zerolog.Logger
}

// NewDriver creates a driver with no configured classes
func NewDriver(logger zerolog.Logger) *Driver {
	return &Driver{
		logger: logger.With().Str("component", "blk").Logger(),
	}
}

// SetMaxDevices configures the number of slots of class
func (d *Driver) SetMaxDevices(class types.StorageClass, n int) {
	slots := make([]interfaces.BlockDevice, n)
	copy(slots, d.slots[class])
	d.slots[class] = slots
}

// RequireProbe hides the devices of class until Probe is called, like a USB
// bus that must be started before its disks appear
func (d *Driver) RequireProbe(class types.StorageClass) {
	d.needsProbe[class] = true
}

// Attach places dev in slot of class
func (d *Driver) Attach(class types.StorageClass, slot int, dev interfaces.BlockDevice) error {
	if slot < 0 || slot >= len(d.slots[class]) {
		return fmt.Errorf("%s slot %d out of range (max %d): %w", class, slot, len(d.slots[class]), types.ErrInvalid)
	}
	if d.slots[class][slot] != nil {
		return fmt.Errorf("%s slot %d already populated: %w", class, slot, types.ErrInvalid)
	}
	d.slots[class][slot] = dev
	return nil
}

// Device implements interfaces.BlockDriver
func (d *Driver) Device(class types.StorageClass, index int) interfaces.BlockDevice {
	if class < 0 || class >= types.NumStorageClasses {
		return nil
	}
	if d.needsProbe[class] && !d.probed[class] {
		return nil
	}
	if index < 0 || index >= len(d.slots[class]) {
		return nil
	}
	return d.slots[class][index]
}

// MaxDevices implements interfaces.BlockDriver
func (d *Driver) MaxDevices(class types.StorageClass) int {
	if class < 0 || class >= types.NumStorageClasses {
		return 0
	}
	return len(d.slots[class])
}

// Probe implements interfaces.BlockDriver
func (d *Driver) Probe(class types.StorageClass) error {
	if len(d.slots[class]) == 0 {
		return fmt.Errorf("%s not configured: %w", class, types.ErrNotFound)
	}
	if !d.probed[class] {
		d.logger.Debug().Str("class", class.String()).Msg("bus probed")
	}
	d.probed[class] = true
	return nil
}
