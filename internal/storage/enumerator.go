// Package storage presents the block devices of every storage class as one
// flat, resumable sequence.
package storage

import (
	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/metrics"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// GroupSpec configures one storage class taking part in a sweep.
type GroupSpec struct {
	Class types.StorageClass
	// MaxDev bounds the slots scanned; 0 takes the driver's slot count.
	MaxDev int
}

// DefaultGroups returns every storage class in the fixed sweep order
// IDE, USB, SCSI, MMC, SATA.
func DefaultGroups() []GroupSpec {
	groups := make([]GroupSpec, 0, types.NumStorageClasses)
	for c := types.ClassIDE; c < types.NumStorageClasses; c++ {
		groups = append(groups, GroupSpec{Class: c})
	}
	return groups
}

type group struct {
	class   types.StorageClass
	maxDev  int
	extType types.ExternalType
	started bool
	ended   bool
}

// Enumerator walks the storage groups one device per call. It is not safe
// for concurrent use: the started/ended flags encode the single sweep in
// flight.
type Enumerator struct {
	driver interfaces.BlockDriver
	groups []group
	logger zerolog.Logger
}

// NewEnumerator creates an enumerator over the given groups, swept in the
// order given. With no groups, DefaultGroups is used.
func NewEnumerator(driver interfaces.BlockDriver, logger zerolog.Logger, specs ...GroupSpec) *Enumerator {
	if len(specs) == 0 {
		specs = DefaultGroups()
	}
	e := &Enumerator{
		driver: driver,
		logger: logger.With().Str("component", "enum").Logger(),
	}
	for _, s := range specs {
		maxDev := s.MaxDev
		if maxDev == 0 {
			maxDev = driver.MaxDevices(s.Class)
		}
		e.groups = append(e.groups, group{
			class:   s.Class,
			maxDev:  maxDev,
			extType: s.Class.ExternalType(),
		})
	}
	return e
}

// Reset clears the progress of every group so a completed sweep can start
// again.
func (e *Enumerator) Reset() {
	for i := range e.groups {
		e.groups[i].started = false
		e.groups[i].ended = false
	}
}

// Next fills info with the device after info.Cookie, or the first device
// when info.Cookie is nil. It returns false, with info.Cookie cleared, once
// every group is exhausted.
func (e *Enumerator) Next(info *types.DeviceInfo) bool {
	for i := range e.groups {
		if e.enumGroup(&e.groups[i], info) {
			return true
		}
	}
	info.Cookie = nil
	return false
}

// Device resolves a cookie returned by Next to its block device.
func (e *Enumerator) Device(cookie *types.Cookie) interfaces.BlockDevice {
	if cookie == nil {
		return nil
	}
	return e.driver.Device(cookie.Class, cookie.Slot)
}

func (e *Enumerator) owns(g *group, cookie *types.Cookie) bool {
	return cookie.Class == g.class && cookie.Slot >= 0 && cookie.Slot < g.maxDev
}

func (e *Enumerator) enumGroup(g *group, info *types.DeviceInfo) bool {
	var found, more bool
	log := e.logger.Debug().Str("class", g.class.String())

	switch {
	case info.Cookie == nil:
		log.Msg("enum restart")
		found, more = e.get(g, 0, info)
		g.started = true

	case e.owns(g, info.Cookie):
		if g.ended {
			log.Msg("nothing more to enum")
			return false
		}
		log.Int("after", info.Cookie.Slot).Msg("enum continued")
		found, more = e.get(g, info.Cookie.Slot+1, info)

	default:
		if g.ended {
			log.Msg("already enumerated, skipping")
			return false
		}
		if g.started {
			// A started group can only be resumed with one of its own
			// cookies; anything else is a stale or foreign token.
			e.logger.Error().
				Str("class", g.class.String()).
				Str("cookie", info.Cookie.String()).
				Msg("out of order iteration")
			found, more = false, false
		} else {
			log.Msg("first time enum")
			g.started = true
			found, more = e.get(g, 0, info)
		}
	}

	g.ended = !more
	return found
}

// get scans slots from index on for the first active device. more reports
// whether the group may hold further devices after the one returned.
func (e *Enumerator) get(g *group, from int, info *types.DeviceInfo) (found, more bool) {
	for slot := from; slot < g.maxDev; slot++ {
		dev := e.driver.Device(g.class, slot)
		if dev == nil {
			continue
		}
		if dev.Type() == types.DevTypeUnknown {
			e.logger.Debug().Str("device", dev.Name()).Msg("device instance exists, but is not active")
			continue
		}
		info.Cookie = &types.Cookie{Class: g.class, Slot: slot}
		info.Type = g.extType
		info.BlockCount = dev.BlockCount()
		info.BlockSize = dev.BlockSize()
		metrics.IncStorageDevice(g.class.String())
		return true, true
	}
	info.Cookie = nil
	return false, false
}
