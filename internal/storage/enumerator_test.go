package storage

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// newTestDriver builds a driver with the given number of devices per class,
// placed in consecutive slots, and maxDev slots for every listed class.
func newTestDriver(t *testing.T, maxDev int, counts map[types.StorageClass]int) *device.Driver {
	t.Helper()
	drv := device.NewDriver(zerolog.Nop())
	for class, n := range counts {
		drv.SetMaxDevices(class, maxDev)
		for slot := 0; slot < n; slot++ {
			name := types.Cookie{Class: class, Slot: slot}.String()
			require.NoError(t, drv.Attach(class, slot, device.NewMemoryDevice(name, 512, uint64(16+slot))))
		}
	}
	return drv
}

// sweep drives the enumerator the way a caller is expected to: start from a
// nil cookie and always continue with the last cookie returned.
func sweep(e *Enumerator, limit int) []types.Cookie {
	var got []types.Cookie
	var info types.DeviceInfo
	for i := 0; i < limit && e.Next(&info); i++ {
		got = append(got, *info.Cookie)
	}
	return got
}

func TestEnumerator_ExampleScenario(t *testing.T) {
	drv := newTestDriver(t, 4, map[types.StorageClass]int{
		types.ClassMMC: 2,
		types.ClassUSB: 1,
	})
	// Board with only MMC and USB configured, MMC swept first.
	e := NewEnumerator(drv, zerolog.Nop(),
		GroupSpec{Class: types.ClassMMC},
		GroupSpec{Class: types.ClassUSB},
	)

	var info types.DeviceInfo
	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassMMC, Slot: 0}, *info.Cookie)
	assert.Equal(t, types.DevTypStor|types.DTStorMMC, info.Type)
	assert.Equal(t, uint64(16), info.BlockCount)
	assert.Equal(t, uint32(512), info.BlockSize)

	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassMMC, Slot: 1}, *info.Cookie)
	assert.Equal(t, uint64(17), info.BlockCount)

	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassUSB, Slot: 0}, *info.Cookie)
	assert.Equal(t, types.DevTypStor|types.DTStorUSB, info.Type)

	last := *info.Cookie
	assert.False(t, e.Next(&info))
	assert.Nil(t, info.Cookie)

	// Continuing from the last device keeps reporting the end of the sweep.
	for i := 0; i < 3; i++ {
		info.Cookie = &last
		assert.False(t, e.Next(&info))
	}
}

func TestEnumerator_DefaultOrder(t *testing.T) {
	drv := newTestDriver(t, 4, map[types.StorageClass]int{
		types.ClassMMC:  2,
		types.ClassUSB:  1,
		types.ClassSATA: 1,
		types.ClassIDE:  1,
	})
	e := NewEnumerator(drv, zerolog.Nop())

	got := sweep(e, 100)
	assert.Equal(t, []types.Cookie{
		{Class: types.ClassIDE, Slot: 0},
		{Class: types.ClassUSB, Slot: 0},
		{Class: types.ClassMMC, Slot: 0},
		{Class: types.ClassMMC, Slot: 1},
		{Class: types.ClassSATA, Slot: 0},
	}, got)
}

func TestEnumerator_Totality(t *testing.T) {
	configs := []map[types.StorageClass]int{
		{},
		{types.ClassSCSI: 1},
		{types.ClassIDE: 3, types.ClassSATA: 3},
		{types.ClassIDE: 1, types.ClassUSB: 2, types.ClassSCSI: 3, types.ClassMMC: 4, types.ClassSATA: 5},
	}

	for _, counts := range configs {
		drv := newTestDriver(t, 5, counts)
		e := NewEnumerator(drv, zerolog.Nop())

		want := 0
		for _, n := range counts {
			want += n
		}

		got := sweep(e, 1000)
		assert.Len(t, got, want)

		seen := map[types.Cookie]bool{}
		prevClass := types.StorageClass(-1)
		for _, c := range got {
			assert.False(t, seen[c], "device %s returned twice", c)
			seen[c] = true
			assert.GreaterOrEqual(t, c.Class, prevClass, "enumeration moved backwards to %s", c)
			prevClass = c.Class
		}

		if len(got) > 0 {
			last := got[len(got)-1]
			var info types.DeviceInfo
			for i := 0; i < 5; i++ {
				info.Cookie = &last
				assert.False(t, e.Next(&info))
			}
		}
	}
}

func TestEnumerator_SkipsGapsAndInactive(t *testing.T) {
	drv := device.NewDriver(zerolog.Nop())
	drv.SetMaxDevices(types.ClassMMC, 4)
	inactive := device.NewMemoryDevice("mmc1", 512, 8)
	inactive.SetType(types.DevTypeUnknown)
	require.NoError(t, drv.Attach(types.ClassMMC, 1, inactive))
	require.NoError(t, drv.Attach(types.ClassMMC, 3, device.NewMemoryDevice("mmc3", 512, 8)))

	e := NewEnumerator(drv, zerolog.Nop())
	got := sweep(e, 10)
	assert.Equal(t, []types.Cookie{{Class: types.ClassMMC, Slot: 3}}, got)
	assert.Equal(t, "mmc3", e.Device(&got[0]).Name())
	assert.Nil(t, e.Device(nil))
}

func TestEnumerator_ForeignCookieSeedsSweep(t *testing.T) {
	drv := newTestDriver(t, 2, map[types.StorageClass]int{
		types.ClassSCSI: 1,
		types.ClassMMC:  1,
	})
	e := NewEnumerator(drv, zerolog.Nop())

	// A cookie from outside the storage groups (a network device, say)
	// starts every untouched group from its first slot.
	info := types.DeviceInfo{Cookie: &types.Cookie{Class: types.NumStorageClasses, Slot: 0}}
	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassSCSI, Slot: 0}, *info.Cookie)
	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassMMC, Slot: 0}, *info.Cookie)
	assert.False(t, e.Next(&info))
}

// The behaviour for a cookie from another class while a group is mid-sweep
// is kept as found: the mid-sweep group logs and gives up its remaining
// devices instead of restarting.
func TestEnumerator_OutOfOrderCharacterization(t *testing.T) {
	drv := newTestDriver(t, 2, map[types.StorageClass]int{
		types.ClassUSB: 2,
		types.ClassMMC: 1,
	})
	var logs bytes.Buffer
	e := NewEnumerator(drv, zerolog.New(&logs))

	var info types.DeviceInfo
	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassUSB, Slot: 0}, *info.Cookie)

	// Hand in a cookie for a device the sweep has not reached yet.
	info.Cookie = &types.Cookie{Class: types.ClassMMC, Slot: 0}
	require.True(t, e.Next(&info))
	assert.Equal(t, types.Cookie{Class: types.ClassMMC, Slot: 0}, *info.Cookie)
	assert.Contains(t, logs.String(), "out of order iteration")
	assert.Contains(t, logs.String(), `"level":"error"`)

	assert.False(t, e.Next(&info), "usb1 is never returned after the out of order call")
}

func TestEnumerator_Reset(t *testing.T) {
	drv := newTestDriver(t, 2, map[types.StorageClass]int{types.ClassUSB: 2})
	e := NewEnumerator(drv, zerolog.Nop())

	first := sweep(e, 10)
	require.Len(t, first, 2)

	var info types.DeviceInfo
	info.Cookie = &first[1]
	assert.False(t, e.Next(&info))

	e.Reset()
	assert.Equal(t, first, sweep(e, 10))
}

func TestEnumerator_RespectsMaxDev(t *testing.T) {
	drv := newTestDriver(t, 4, map[types.StorageClass]int{types.ClassMMC: 4})
	e := NewEnumerator(drv, zerolog.Nop(), GroupSpec{Class: types.ClassMMC, MaxDev: 2})
	assert.Len(t, sweep(e, 10), 2)
}
