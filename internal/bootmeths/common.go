// Package bootmeths holds the boot methods the scan offers each bootdev:
// extlinux menus, boot scripts, EFI applications and Android boot images.
package bootmeths

import (
	"errors"
	"strings"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Default size limits
const (
	DefaultScriptSizeLimit int64 = 64 << 10
	DefaultFileSizeLimit   int64 = 256 << 20
)

// bootPrefixes are the directories searched for a bootmeth's file
var bootPrefixes = []string{"/", "/boot/"}

// findFile tries each prefix and name in turn and stops at the first file
// found. Lookups that fail for reasons other than absence end the search.
func findFile(fsctx *fs.Context, bflow *bootstd.Bootflow, prefixes, names []string) error {
	err := error(types.ErrNotFound)
	for _, prefix := range prefixes {
		for _, name := range names {
			err = bootstd.TryFile(fsctx, bflow, prefix, name)
			if err == nil || !errors.Is(err, types.ErrNotFound) {
				return err
			}
		}
	}
	return err
}

// loadOther reads a file named relative to the bootflow's directory and
// drops the NUL terminator
func loadOther(fsctx *fs.Context, bflow *bootstd.Bootflow, name string) ([]byte, error) {
	data, err := bootstd.AllocOther(fsctx, bflow, strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, err
	}
	return data[:len(data)-1], nil
}
