package android

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bootstd/internal/device"
	"github.com/deploymenttheory/go-bootstd/internal/disk"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/parsers/bootctrl"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// newMiscDevice builds a disk with a misc partition holding raw at the
// control block offset
func newMiscDevice(t *testing.T, raw []byte) (*device.MemoryDevice, disk.Partition) {
	t.Helper()
	dev := device.NewMemoryDevice("mmc0", 512, 128)
	require.NoError(t, disk.WriteTable(dev, uuid.New(), []disk.Partition{
		{Name: "boot_a", Start: 34, Size: 16},
		{Name: types.MiscPartition, Start: 50, Size: 16},
	}))
	part, err := FindMisc(dev)
	require.NoError(t, err)

	off := part.Start*512 + types.BootCtrlOffset
	copy(dev.Bytes()[off:], raw)
	return dev, part
}

func controlBytes(dev *device.MemoryDevice, part disk.Partition) []byte {
	off := part.Start*512 + types.BootCtrlOffset
	return append([]byte(nil), dev.Bytes()[off:off+types.BootCtrlSize]...)
}

func readControl(t *testing.T, dev *device.MemoryDevice, part disk.Partition) *types.BootloaderControl {
	t.Helper()
	raw := controlBytes(dev, part)
	require.True(t, bootctrl.VerifyCRC(raw), "written block must carry a valid CRC")
	c, err := bootctrl.Decode(raw)
	require.NoError(t, err)
	return c
}

func twoSlots(a, b types.SlotMetadata) *types.BootloaderControl {
	c := bootctrl.Default()
	c.NbSlot = 2
	c.SlotInfo[0] = a
	c.SlotInfo[1] = b
	return c
}

func TestSelectSlot_Determinism(t *testing.T) {
	tests := []struct {
		name string
		a, b types.SlotMetadata
		want int
	}{
		{
			name: "higher tries wins on priority tie",
			a:    types.SlotMetadata{Priority: 10, TriesRemaining: 3},
			b:    types.SlotMetadata{Priority: 10, TriesRemaining: 5},
			want: 1,
		},
		{
			name: "priority dominates success",
			a:    types.SlotMetadata{Priority: 5, TriesRemaining: 1, SuccessfulBoot: true},
			b:    types.SlotMetadata{Priority: 10, TriesRemaining: 1},
			want: 1,
		},
		{
			name: "success wins on priority tie",
			a:    types.SlotMetadata{Priority: 10, TriesRemaining: 1},
			b:    types.SlotMetadata{Priority: 10, TriesRemaining: 1, SuccessfulBoot: true},
			want: 1,
		},
		{
			name: "full tie goes to lowest index",
			a:    types.SlotMetadata{Priority: 10, TriesRemaining: 4},
			b:    types.SlotMetadata{Priority: 10, TriesRemaining: 4},
			want: 0,
		},
		{
			name: "verity corrupted slot is skipped",
			a:    types.SlotMetadata{Priority: 15, TriesRemaining: 7, VerityCorrupted: true},
			b:    types.SlotMetadata{Priority: 1, TriesRemaining: 1},
			want: 1,
		},
		{
			name: "slot without tries is skipped",
			a:    types.SlotMetadata{Priority: 1, TriesRemaining: 2},
			b:    types.SlotMetadata{Priority: 15, SuccessfulBoot: true},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, part := newMiscDevice(t, bootctrl.Seal(twoSlots(tt.a, tt.b)))
			s := NewSelector(zerolog.Nop())

			for i := 0; i < 3; i++ {
				got, err := s.SelectSlot(dev, part, false)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSelectSlot_Starvation(t *testing.T) {
	abc := twoSlots(
		types.SlotMetadata{Priority: 15, TriesRemaining: 3},
		types.SlotMetadata{Priority: 4, TriesRemaining: 2, SuccessfulBoot: true},
	)
	dev, part := newMiscDevice(t, bootctrl.Seal(abc))
	s := NewSelector(zerolog.Nop())

	for i := 0; i < 3; i++ {
		got, err := s.SelectSlot(dev, part, true)
		require.NoError(t, err)
		assert.Equal(t, 0, got, "selection %d", i+1)
		assert.Equal(t, uint8(2-i), readControl(t, dev, part).SlotInfo[0].TriesRemaining)
	}

	// slot a is now unbootable; the confirmed slot b takes over without
	// spending its tries
	for i := 0; i < 3; i++ {
		got, err := s.SelectSlot(dev, part, true)
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	}
	final := readControl(t, dev, part)
	assert.Equal(t, uint8(0), final.SlotInfo[0].TriesRemaining)
	assert.Equal(t, uint8(2), final.SlotInfo[1].TriesRemaining)
	assert.Equal(t, byte('b'), final.SlotSuffix[0])
}

func TestSelectSlot_NoBootableSlot(t *testing.T) {
	abc := twoSlots(
		types.SlotMetadata{Priority: 15, TriesRemaining: 1},
		types.SlotMetadata{Priority: 15},
	)
	dev, part := newMiscDevice(t, bootctrl.Seal(abc))
	s := NewSelector(zerolog.Nop())

	got, err := s.SelectSlot(dev, part, true)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = s.SelectSlot(dev, part, true)
	assert.ErrorIs(t, err, types.ErrInvalid)
	assert.Equal(t, -int(types.EINVAL), types.Code(err))
}

func TestSelectSlot_CorruptionRecovery(t *testing.T) {
	abc := twoSlots(
		types.SlotMetadata{Priority: 3, TriesRemaining: 1},
		types.SlotMetadata{Priority: 12, TriesRemaining: 5},
	)
	raw := bootctrl.Seal(abc)
	raw[28] ^= 0x01
	dev, part := newMiscDevice(t, raw)

	got, err := NewSelector(zerolog.Nop()).SelectSlot(dev, part, false)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	written := readControl(t, dev, part)
	assert.Equal(t, byte('a'), written.SlotSuffix[0])
	assert.Equal(t, uint8(types.MaxSlotPriority), written.SlotInfo[0].Priority)
	assert.Equal(t, uint8(types.MaxTriesRemaining), written.SlotInfo[0].TriesRemaining)
	assert.False(t, written.SlotInfo[0].SuccessfulBoot)
	assert.Equal(t, types.SlotMetadata{}, written.SlotInfo[1])
}

func TestSelectSlot_BadMagicAndVersion(t *testing.T) {
	for _, mutate := range []func(c *types.BootloaderControl){
		func(c *types.BootloaderControl) { c.Magic = 0x12345678 },
		func(c *types.BootloaderControl) { c.Version = types.BootCtrlVersion + 1 },
	} {
		abc := bootctrl.Default()
		mutate(abc)
		dev, part := newMiscDevice(t, bootctrl.Seal(abc))
		before := controlBytes(dev, part)

		_, err := NewSelector(zerolog.Nop()).SelectSlot(dev, part, true)
		assert.ErrorIs(t, err, types.ErrNoData)
		assert.Equal(t, -int(types.ENODATA), types.Code(err))
		assert.Equal(t, before, controlBytes(dev, part), "no repair on bad magic or version")
	}
}

func TestSelectSlot_ClampsSlotCount(t *testing.T) {
	abc := bootctrl.Default()
	abc.NbSlot = 7
	abc.SlotInfo[3] = types.SlotMetadata{Priority: 15, TriesRemaining: 7, SuccessfulBoot: true}
	dev, part := newMiscDevice(t, bootctrl.Seal(abc))

	got, err := NewSelector(zerolog.Nop()).SelectSlot(dev, part, false)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	written := readControl(t, dev, part)
	assert.Equal(t, uint8(types.BootCtrlMaxSlots), written.NbSlot)
	assert.Equal(t, byte('d'), written.SlotSuffix[0])
}

func TestSelectSlot_WriteBack(t *testing.T) {
	abc := bootctrl.Default()
	dev, part := newMiscDevice(t, bootctrl.Seal(abc))

	// bytes sharing the block with the control block survive a write-back
	marker := part.Start*512 + types.BootCtrlOffset + 100
	dev.Bytes()[marker] = 0x5a

	before := controlBytes(dev, part)
	s := NewSelector(zerolog.Nop())
	_, err := s.SelectSlot(dev, part, false)
	require.NoError(t, err)
	assert.Equal(t, before, controlBytes(dev, part), "clean block is not rewritten")

	_, err = s.SelectSlot(dev, part, true)
	require.NoError(t, err)
	assert.NotEqual(t, before, controlBytes(dev, part))
	assert.Equal(t, byte(0x5a), dev.Bytes()[marker])
	assert.Equal(t, uint8(6), readControl(t, dev, part).SlotInfo[0].TriesRemaining)
}

func TestSelectSlot_LegacySuffix(t *testing.T) {
	abc := twoSlots(
		types.SlotMetadata{Priority: 15, TriesRemaining: 7},
		types.SlotMetadata{Priority: 5, TriesRemaining: 7},
	)
	copy(abc.SlotSuffix[:], "_b\x00\x00")
	dev, part := newMiscDevice(t, bootctrl.Seal(abc))

	got, err := NewSelector(zerolog.Nop()).SelectSlot(dev, part, false)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, [4]byte{'a', 0, 0, 0}, readControl(t, dev, part).SlotSuffix)
}

func TestWriteBack_KeepsMergeStatus(t *testing.T) {
	tests := []struct {
		name   string
		update func(s *Selector, dev interfaces.BlockDevice, part disk.Partition) error
	}{
		{"select", func(s *Selector, dev interfaces.BlockDevice, part disk.Partition) error {
			_, err := s.SelectSlot(dev, part, true)
			return err
		}},
		{"set active", func(s *Selector, dev interfaces.BlockDevice, part disk.Partition) error {
			return s.SetActive(dev, part, 1)
		}},
		{"mark successful", func(s *Selector, dev interfaces.BlockDevice, part disk.Partition) error {
			return s.MarkSuccessful(dev, part, 0)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := bootctrl.Seal(twoSlots(
				types.SlotMetadata{Priority: 15, TriesRemaining: 7},
				types.SlotMetadata{Priority: 14, TriesRemaining: 7},
			))
			raw[9] = 0x82 // nb_slot 2, merge_status 2 (snapshotted)
			binary.LittleEndian.PutUint32(raw[types.BootCtrlCRCOffset:], bootctrl.ComputeCRC(raw))
			dev, part := newMiscDevice(t, raw)

			require.NoError(t, tt.update(NewSelector(zerolog.Nop()), dev, part))
			written := controlBytes(dev, part)
			assert.NotEqual(t, raw, written)
			assert.Equal(t, byte(0x82), written[9])
			assert.Equal(t, byte(0x00), written[10])
			assert.Equal(t, uint8(2), readControl(t, dev, part).MergeStatus)
		})
	}
}

func TestSelectSlot_MisalignedOffset(t *testing.T) {
	dev := device.NewMemoryDevice("nvme0", 4096, 16)
	part := disk.Partition{Name: types.MiscPartition, Start: 1, Size: 4}

	_, err := NewSelector(zerolog.Nop()).SelectSlot(dev, part, false)
	assert.ErrorIs(t, err, types.ErrInvalid)
}

func TestSetActiveAndMarkSuccessful(t *testing.T) {
	abc := twoSlots(
		types.SlotMetadata{Priority: 15, TriesRemaining: 7, SuccessfulBoot: true},
		types.SlotMetadata{Priority: 0, TriesRemaining: 0},
	)
	dev, part := newMiscDevice(t, bootctrl.Seal(abc))
	s := NewSelector(zerolog.Nop())

	require.NoError(t, s.SetActive(dev, part, 1))
	c := readControl(t, dev, part)
	assert.Equal(t, uint8(14), c.SlotInfo[0].Priority)
	assert.Equal(t, uint8(15), c.SlotInfo[1].Priority)
	assert.Equal(t, uint8(6), c.SlotInfo[1].TriesRemaining)

	got, err := s.SelectSlot(dev, part, true)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	require.NoError(t, s.MarkSuccessful(dev, part, 1))
	c = readControl(t, dev, part)
	assert.True(t, c.SlotInfo[1].SuccessfulBoot)
	assert.Equal(t, uint8(5), c.SlotInfo[1].TriesRemaining)

	assert.ErrorIs(t, s.SetActive(dev, part, 3), types.ErrInvalid)
	assert.ErrorIs(t, s.MarkSuccessful(dev, part, -1), types.ErrInvalid)
}

func TestDump(t *testing.T) {
	raw := bootctrl.Seal(bootctrl.Default())
	dev, part := newMiscDevice(t, raw)
	s := NewSelector(zerolog.Nop())

	c, crcOK, err := s.Dump(dev, part)
	require.NoError(t, err)
	assert.True(t, crcOK)
	assert.Equal(t, types.BootCtrlMagic, c.Magic)

	dev.Bytes()[part.Start*512+types.BootCtrlOffset+13] ^= 0xff
	before := controlBytes(dev, part)
	_, crcOK, err = s.Dump(dev, part)
	require.NoError(t, err)
	assert.False(t, crcOK)
	assert.Equal(t, before, controlBytes(dev, part))
}
