package bootdevs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/storage"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// BindStorage sweeps the enumerator and binds a block bootdev for each
// device of the given classes that has none yet. With no classes every
// device is bound. It returns the number of bootdevs bound.
func BindStorage(ctx context.Context, std *bootstd.Std, enum *storage.Enumerator, classes ...types.StorageClass) (int, error) {
	want := func(c types.StorageClass) bool {
		if len(classes) == 0 {
			return true
		}
		for _, w := range classes {
			if w == c {
				return true
			}
		}
		return false
	}

	enum.Reset()
	bound := 0
	var info types.DeviceInfo
	for enum.Next(&info) {
		if err := ctx.Err(); err != nil {
			return bound, err
		}
		if !want(info.Cookie.Class) {
			continue
		}
		if _, err := std.Bootdev(info.Cookie.String()); err == nil {
			continue
		}
		dev := enum.Device(info.Cookie)
		if dev == nil {
			continue
		}
		blk := NewBlock(info.Cookie.Class, info.Cookie.Slot, dev, std.FS(), std.Logger())
		if err := std.BindBootdev(blk); err != nil {
			return bound, err
		}
		bound++
	}
	return bound, nil
}

// BlockHunter probes the bus of one storage class and binds bootdevs for
// the devices that appear
type BlockHunter struct {
	class  types.StorageClass
	driver interfaces.BlockDriver
	enum   *storage.Enumerator
	logger zerolog.Logger
}

// NewBlockHunter creates a hunter for class
func NewBlockHunter(class types.StorageClass, driver interfaces.BlockDriver, enum *storage.Enumerator, logger zerolog.Logger) *BlockHunter {
	return &BlockHunter{
		class:  class,
		driver: driver,
		enum:   enum,
		logger: logger.With().Str("component", "hunter").Str("uclass", class.String()).Logger(),
	}
}

func (h *BlockHunter) UClass() string                  { return h.class.String() }
func (h *BlockHunter) Priority() types.BootdevPriority { return types.ClassPriority(h.class) }

// Hunt implements bootstd.Hunter
func (h *BlockHunter) Hunt(ctx context.Context, std *bootstd.Std) error {
	if err := h.driver.Probe(h.class); err != nil {
		return fmt.Errorf("probe %s: %w", h.class, err)
	}
	n, err := BindStorage(ctx, std, h.enum, h.class)
	h.logger.Debug().Int("bound", n).Msg("hunt complete")
	return err
}
