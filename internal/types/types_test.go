package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "bare errno", err: ENOENT, want: -2},
		{name: "wrapped", err: fmt.Errorf("select: %w", ErrNoData), want: -61},
		{name: "double wrapped", err: fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrPermission)), want: -1},
		{name: "foreign error", err: errors.New("boom"), want: -22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestStorageClassNames(t *testing.T) {
	for c := ClassIDE; c < NumStorageClasses; c++ {
		parsed, err := ParseStorageClass(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseStorageClass("floppy")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, DevTypStor|DTStorMMC, ClassMMC.ExternalType())
	assert.Equal(t, "usb0", Cookie{Class: ClassUSB, Slot: 0}.String())
}

func TestClassPriorityOrder(t *testing.T) {
	assert.Less(t, ClassPriority(ClassMMC), ClassPriority(ClassSATA))
	assert.Less(t, ClassPriority(ClassSATA), ClassPriority(ClassUSB))
	assert.Equal(t, "0_internal-fast", PrioInternalFast.String())
}

func TestSlotIndex(t *testing.T) {
	i, err := SlotIndex("_b")
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, byte('b'), SlotName(i))

	_, err = SlotIndex("z")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSlotBootable(t *testing.T) {
	assert.True(t, SlotMetadata{Priority: 1, TriesRemaining: 1}.Bootable())
	assert.False(t, SlotMetadata{Priority: 15, TriesRemaining: 0}.Bootable())
	assert.False(t, SlotMetadata{Priority: 15, TriesRemaining: 7, VerityCorrupted: true}.Bootable())
}
