package env

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnv_SetGet(t *testing.T) {
	e := New(zerolog.Nop())
	assert.Equal(t, "", e.Get("bootcmd"))

	require.NoError(t, e.Set("bootcmd", "bootflow scan"))
	assert.Equal(t, "bootflow scan", e.Get("bootcmd"))

	require.NoError(t, e.Set("bootcmd", ""))
	assert.Empty(t, e.All())
}

func TestEnv_CallbackVeto(t *testing.T) {
	e := New(zerolog.Nop())
	var seen []string
	e.OnChange(VarBootmeths, func(name, value string) error {
		if value == "bogus" {
			return errors.New("unknown bootmeth")
		}
		seen = append(seen, value)
		return nil
	})

	require.NoError(t, e.Set(VarBootmeths, "extlinux efi"))
	assert.Error(t, e.Set(VarBootmeths, "bogus"))
	assert.Equal(t, "extlinux efi", e.Get(VarBootmeths), "rejected value is not stored")

	require.NoError(t, e.Set(VarBootmeths, ""))
	assert.Equal(t, []string{"extlinux efi", ""}, seen)
}

func TestEnv_Import(t *testing.T) {
	e := New(zerolog.Nop())
	var order []string
	cb := func(name, _ string) error {
		order = append(order, name)
		return nil
	}
	e.OnChange(VarBootTargets, cb)
	e.OnChange(VarBootmeths, cb)

	require.NoError(t, e.Import(map[string]string{
		VarBootmeths:   "script",
		VarBootTargets: "mmc usb",
		"arch":         "arm64",
	}))
	assert.Equal(t, []string{VarBootTargets, VarBootmeths}, order)
	assert.Len(t, e.All(), 3)
}
