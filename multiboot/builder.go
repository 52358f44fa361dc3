package multiboot

import "encoding/binary"

// InfoBuilder assembles a multiboot2 information block the way a boot loader
// lays it out: an 8-byte header followed by 8-byte aligned tags and a
// terminating end tag. It is used to boot the kernel core on a hosted
// machine.
type InfoBuilder struct {
	buf []byte
}

// NewInfoBuilder returns a builder for an empty information block.
func NewInfoBuilder() *InfoBuilder {
	return &InfoBuilder{buf: make([]byte, 8)}
}

func (b *InfoBuilder) tag(tagType tagType, payload []byte) *InfoBuilder {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(tagType))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(hdr)+len(payload)))

	b.buf = append(b.buf, hdr[:]...)
	b.buf = append(b.buf, payload...)
	for len(b.buf)%8 != 0 {
		b.buf = append(b.buf, 0)
	}
	return b
}

// CmdLine adds the kernel command line tag.
func (b *InfoBuilder) CmdLine(cmdLine string) *InfoBuilder {
	return b.tag(tagBootCmdLine, append([]byte(cmdLine), 0))
}

// BootLoaderName adds the boot loader name tag.
func (b *InfoBuilder) BootLoaderName(name string) *InfoBuilder {
	return b.tag(tagBootLoaderName, append([]byte(name), 0))
}

// MemoryMap adds a memory map tag with the given regions.
func (b *InfoBuilder) MemoryMap(entries ...MemoryMapEntry) *InfoBuilder {
	const entrySize = 24

	payload := make([]byte, 8+entrySize*len(entries))
	binary.LittleEndian.PutUint32(payload[0:], entrySize)
	for i, entry := range entries {
		offset := 8 + entrySize*i
		binary.LittleEndian.PutUint64(payload[offset:], entry.PhysAddress)
		binary.LittleEndian.PutUint64(payload[offset+8:], entry.Length)
		binary.LittleEndian.PutUint32(payload[offset+16:], uint32(entry.Type))
	}
	return b.tag(tagMemoryMap, payload)
}

// Framebuffer adds a framebuffer info tag.
func (b *InfoBuilder) Framebuffer(fb FramebufferInfo) *InfoBuilder {
	payload := make([]byte, 24)
	binary.LittleEndian.PutUint64(payload[0:], fb.PhysAddr)
	binary.LittleEndian.PutUint32(payload[8:], fb.Pitch)
	binary.LittleEndian.PutUint32(payload[12:], fb.Width)
	binary.LittleEndian.PutUint32(payload[16:], fb.Height)
	payload[20] = fb.Bpp
	payload[21] = uint8(fb.Type)
	return b.tag(tagFramebufferInfo, payload)
}

// Build terminates the tag list and returns the information block. The
// builder must not be used afterwards.
func (b *InfoBuilder) Build() []byte {
	b.tag(tagMbSectionEnd, nil)
	binary.LittleEndian.PutUint32(b.buf[0:], uint32(len(b.buf)))
	return b.buf
}
