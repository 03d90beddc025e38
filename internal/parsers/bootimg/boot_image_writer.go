// File: internal/parsers/bootimg/boot_image_writer.go
package bootimg

import (
	"bytes"
	"encoding/binary"

	"github.com/deploymenttheory/go-bootstd/internal/types"
)

// Build lays out a version 0 boot image: header, kernel and ramdisk, each
// padded to pageSize. Name and cmdline are truncated to fit the header.
func Build(name, cmdline string, pageSize uint32, kernel, ramdisk []byte) []byte {
	hdr := types.AndroidBootImgHdr{
		KernelSize:  uint32(len(kernel)),
		RamdiskSize: uint32(len(ramdisk)),
		PageSize:    pageSize,
	}
	copy(hdr.Magic[:], types.BootImageMagic)
	copy(hdr.Name[:len(hdr.Name)-1], name)
	if len(cmdline) < len(hdr.Cmdline) {
		copy(hdr.Cmdline[:], cmdline)
	} else {
		n := copy(hdr.Cmdline[:], cmdline)
		copy(hdr.ExtraCmdline[:len(hdr.ExtraCmdline)-1], cmdline[n:])
	}

	var buf bytes.Buffer
	// writes to a bytes.Buffer do not fail
	_ = binary.Write(&buf, binary.LittleEndian, &hdr)
	pad(&buf, pageSize)
	buf.Write(kernel)
	pad(&buf, pageSize)
	buf.Write(ramdisk)
	pad(&buf, pageSize)
	return buf.Bytes()
}

func pad(buf *bytes.Buffer, pageSize uint32) {
	if rem := buf.Len() % int(pageSize); rem != 0 {
		buf.Write(make([]byte, int(pageSize)-rem))
	}
}
