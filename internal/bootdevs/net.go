package bootdevs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// NetUClass labels network bootdevs in boot_targets
const NetUClass = "eth"

// Net is a bootdev reading files from a TFTP server
type Net struct {
	name  string
	src   *fs.TFTPSource
	fsctx *fs.Context
}

// NewNet creates a network bootdev over src
func NewNet(name string, src *fs.TFTPSource, fsctx *fs.Context) *Net {
	return &Net{name: name, src: src, fsctx: fsctx}
}

func (n *Net) Name() string                    { return n.name }
func (n *Net) UClass() string                  { return NetUClass }
func (n *Net) Priority() types.BootdevPriority { return types.PrioNetBase }

// GetBootflow implements bootstd.Bootdev
func (n *Net) GetBootflow(ctx context.Context, _ *bootstd.Iter, bflow *bootstd.Bootflow) error {
	return fileBootflow(ctx, n.fsctx, n.src, bflow)
}

// NetHunter brings up the TFTP client the first time the network tier is
// reached and binds a Net bootdev for it
type NetHunter struct {
	server  string
	timeout time.Duration
	retries int
	logger  zerolog.Logger

	// dial is replaced in tests
	dial func(server string, timeout time.Duration, retries int) (fs.Receiver, error)
}

// NewNetHunter creates a hunter for the TFTP server at server
func NewNetHunter(server string, timeout time.Duration, retries int, logger zerolog.Logger) *NetHunter {
	return &NetHunter{
		server:  server,
		timeout: timeout,
		retries: retries,
		logger:  logger.With().Str("component", "hunter").Str("uclass", NetUClass).Logger(),
		dial:    fs.NewTFTPReceiver,
	}
}

func (h *NetHunter) UClass() string                  { return NetUClass }
func (h *NetHunter) Priority() types.BootdevPriority { return types.PrioNetBase }

// Hunt implements bootstd.Hunter
func (h *NetHunter) Hunt(_ context.Context, std *bootstd.Std) error {
	if h.server == "" {
		return fmt.Errorf("no tftp server configured: %w", types.ErrNotFound)
	}
	client, err := h.dial(h.server, h.timeout, h.retries)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s%d", NetUClass, 0)
	h.logger.Debug().Str("server", h.server).Str("bootdev", name).Msg("network up")
	return std.BindBootdev(NewNet(name, fs.NewTFTPSource(client), std.FS()))
}

// fileBootflow prepares a bootflow on a non-block filesystem and hands it
// to the bootmeth
func fileBootflow(ctx context.Context, fsctx *fs.Context, src fs.Source, bflow *bootstd.Bootflow) error {
	bflow.State = bootstd.StateMedia
	bflow.Source = src
	if bflow.Method.Flags()&bootstd.MethodAnyPart == 0 {
		if err := bootstd.SetupFS(fsctx, bflow); err != nil {
			return err
		}
		bflow.State = bootstd.StateFS
	}
	return bootstd.ReadBootflow(ctx, bflow.Method, bflow)
}
