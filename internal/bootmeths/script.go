package bootmeths

import (
	"context"
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/deploymenttheory/go-bootstd/internal/bootstd"
	"github.com/deploymenttheory/go-bootstd/internal/fs"
)

// ScriptFiles are the script names looked for under each boot prefix
var ScriptFiles = []string{"boot.scr.uimg", "boot.scr"}

// legacy image header wrapped around compiled scripts
const (
	uImageMagic      = 0x27051956
	uImageHeaderSize = 64
)

// Script finds boot scripts. Running them belongs to the command layer, so
// the bootmeth has no boot operation.
type Script struct {
	fsctx     *fs.Context
	sizeLimit int64
	logger    zerolog.Logger
}

// NewScript creates the script bootmeth
func NewScript(fsctx *fs.Context, sizeLimit int64, logger zerolog.Logger) *Script {
	if sizeLimit <= 0 {
		sizeLimit = DefaultScriptSizeLimit
	}
	return &Script{
		fsctx:     fsctx,
		sizeLimit: sizeLimit,
		logger:    logger.With().Str("component", "script").Logger(),
	}
}

func (s *Script) Name() string               { return "script" }
func (s *Script) Flags() bootstd.MethodFlags { return 0 }

// ReadBootflow implements bootstd.Bootmeth
func (s *Script) ReadBootflow(_ context.Context, bflow *bootstd.Bootflow) error {
	if err := findFile(s.fsctx, bflow, bootPrefixes, ScriptFiles); err != nil {
		return err
	}
	if err := bootstd.AllocFile(s.fsctx, bflow, s.sizeLimit); err != nil {
		return err
	}
	bflow.OSName = ScriptName(bflow.Content())
	s.logger.Debug().Str("file", bflow.FName).Bool("uimage", IsUImage(bflow.Content())).Msg("script found")
	return nil
}

// ReadFile implements bootstd.FileReader
func (s *Script) ReadFile(_ context.Context, bflow *bootstd.Bootflow, path string, limit int64) ([]byte, error) {
	return bootstd.ReadFileCommon(s.fsctx, bflow, path, limit)
}

// StateDesc implements bootstd.StateDescriber
func (s *Script) StateDesc(bflow *bootstd.Bootflow) (string, error) {
	kind := "text"
	if IsUImage(bflow.Content()) {
		kind = "uimage"
	}
	return "script " + bflow.FName + " (" + kind + ")", nil
}

// IsUImage reports whether data carries a legacy image header
func IsUImage(data []byte) bool {
	return len(data) >= uImageHeaderSize && binary.BigEndian.Uint32(data) == uImageMagic
}

// ScriptName returns the image name of a wrapped script, empty for a plain
// one
func ScriptName(data []byte) string {
	if !IsUImage(data) {
		return ""
	}
	name := data[32:uImageHeaderSize]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	return string(name)
}
