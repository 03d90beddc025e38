// File: internal/parsers/bootimg/boot_image_reader.go
package bootimg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-bootstd/internal/interfaces"
	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// BootImageReader parses and provides access to an Android boot image header
type BootImageReader struct {
	hdr types.AndroidBootImgHdr
}

// Compile-time check to ensure BootImageReader implements BootImageReader
var _ interfaces.BootImageReader = (*BootImageReader)(nil)

// NewBootImageReader parses the header at the start of data. Only the
// header needs to be present.
func NewBootImageReader(data []byte) (*BootImageReader, error) {
	if len(data) < types.BootImageHeaderSize {
		return nil, fmt.Errorf("boot image header needs %d bytes, got %d: %w",
			types.BootImageHeaderSize, len(data), types.ErrNoData)
	}

	var hdr types.AndroidBootImgHdr
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to parse boot image header: %w", err)
	}
	if string(hdr.Magic[:]) != types.BootImageMagic {
		return nil, fmt.Errorf("boot image magic %q: %w", hdr.Magic[:], types.ErrNoData)
	}
	if hdr.PageSize == 0 || hdr.PageSize&(hdr.PageSize-1) != 0 {
		return nil, fmt.Errorf("boot image page size %d: %w", hdr.PageSize, types.ErrNoData)
	}
	if hdr.KernelSize == 0 {
		return nil, fmt.Errorf("boot image has no kernel: %w", types.ErrNoData)
	}
	return &BootImageReader{hdr: hdr}, nil
}

// Header returns a copy of the raw header
func (r *BootImageReader) Header() types.AndroidBootImgHdr {
	return r.hdr
}

// Name returns the product name recorded in the header
func (r *BootImageReader) Name() string {
	return cString(r.hdr.Name[:])
}

// Cmdline returns the kernel command line, joined with its continuation
func (r *BootImageReader) Cmdline() string {
	return cString(r.hdr.Cmdline[:]) + cString(r.hdr.ExtraCmdline[:])
}

func (r *BootImageReader) PageSize() uint32      { return r.hdr.PageSize }
func (r *BootImageReader) KernelSize() uint32    { return r.hdr.KernelSize }
func (r *BootImageReader) RamdiskSize() uint32   { return r.hdr.RamdiskSize }
func (r *BootImageReader) HeaderVersion() uint32 { return r.hdr.HeaderVersion }

func (r *BootImageReader) pages(n uint32) int64 {
	ps := int64(r.hdr.PageSize)
	return (int64(n) + ps - 1) / ps * ps
}

func (r *BootImageReader) kernelOffset() int64 {
	return r.pages(types.BootImageHeaderSize)
}

func (r *BootImageReader) ramdiskOffset() int64 {
	return r.kernelOffset() + r.pages(r.hdr.KernelSize)
}

// ImageSize returns the number of bytes from the header to the end of the
// ramdisk
func (r *BootImageReader) ImageSize() int64 {
	return r.ramdiskOffset() + int64(r.hdr.RamdiskSize)
}

// Kernel returns the kernel taken from the full image
func (r *BootImageReader) Kernel(image []byte) ([]byte, error) {
	return section(image, "kernel", r.kernelOffset(), r.hdr.KernelSize)
}

// Ramdisk returns the ramdisk taken from the full image. An image without
// a ramdisk yields nil.
func (r *BootImageReader) Ramdisk(image []byte) ([]byte, error) {
	if r.hdr.RamdiskSize == 0 {
		return nil, nil
	}
	return section(image, "ramdisk", r.ramdiskOffset(), r.hdr.RamdiskSize)
}

func section(image []byte, what string, off int64, size uint32) ([]byte, error) {
	end := off + int64(size)
	if end > int64(len(image)) {
		return nil, fmt.Errorf("%s ends at %d beyond image of %d bytes: %w", what, end, len(image), types.ErrNoData)
	}
	return image[off:end], nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
