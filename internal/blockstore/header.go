package blockstore

import "bytes"

// Header is a typed view over the mapping's header region (C2), grounded on
// original_source/include/Header/header.h and src/Header/header.c. Header
// never owns the bytes; it always reads/writes through the Mapping's
// current Header() slice, so a caller must fetch Header again after any
// Remap.
type Header struct {
	m *Mapping
}

// NewHeader wraps m's header region.
func NewHeader(m *Mapping) *Header { return &Header{m: m} }

func (h *Header) buf() []byte { return h.m.Header() }

// DataSize / MDSize are the current region sizes as stored in the header;
// they must always equal m.DataSize()/m.MDSize() after a successful Remap.
func (h *Header) DataSize() uint64        { return getU64(h.buf(), hOffDataSize) }
func (h *Header) SetDataSize(v uint64)    { putU64(h.buf(), hOffDataSize, v) }
func (h *Header) MDSize() uint64          { return getU64(h.buf(), hOffMDSize) }
func (h *Header) SetMDSize(v uint64)      { putU64(h.buf(), hOffMDSize, v) }

// ListEntries is the number of occupied entry-table slots across the whole
// archive (spec C5).
func (h *Header) ListEntries() uint64     { return getU64(h.buf(), hOffListEntries) }
func (h *Header) SetListEntries(v uint64) { putU64(h.buf(), hOffListEntries, v) }

// ListBlocks is the number of metadata blocks currently allocated to the
// entry table (list blocks), not counting node blocks or the free pool.
func (h *Header) ListBlocks() uint32     { return getU32(h.buf(), hOffListBlocks) }
func (h *Header) SetListBlocks(v uint32) { putU32(h.buf(), hOffListBlocks, v) }

// FreeNodeBlocks is the count of metadata blocks currently parked in the
// node-block free pool (C4).
func (h *Header) FreeNodeBlocks() uint32     { return getU32(h.buf(), hOffFreeNodeBlocks) }
func (h *Header) SetFreeNodeBlocks(v uint32) { putU32(h.buf(), hOffFreeNodeBlocks, v) }

// NestLevel is the current depth of the entry table's nest-level bitmap
// tree (C5); 0 means a single set of up to 64 list blocks, indexed by list
// block 0's group bitmap.
func (h *Header) NestLevel() uint8     { return getU8(h.buf(), hOffNestLevel) }
func (h *Header) SetNestLevel(v uint8) { putU8(h.buf(), hOffNestLevel, v) }

// BaseDir returns the stored base directory path (NUL-terminated on disk).
func (h *Header) BaseDir() string {
	b := h.buf()[hOffBaseDir : hOffBaseDir+BaseDirCap]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// SetBaseDir stores dir, truncating to BaseDirCap-1 bytes to leave room for
// the terminating NUL. Matches HeadInit's base_dir copy in header.c.
func (h *Header) SetBaseDir(dir string) {
	b := h.buf()[hOffBaseDir : hOffBaseDir+BaseDirCap]
	for i := range b {
		b[i] = 0
	}
	n := len(dir)
	if n > BaseDirCap-1 {
		n = BaseDirCap - 1
	}
	copy(b, dir[:n])
}

// NeededSpace mirrors HeadCalculateNeededSpace: the header region size is
// fixed for the lifetime of an archive at HeaderFixedSize bytes regardless
// of baseDir's length — BaseDirCap already covers any path the CLI can
// realistically be given, and SetBaseDir truncates anything longer rather
// than growing the header region (spec §4.1). Open's bootstrap remap
// depends on every archive's header region being exactly HeaderFixedSize.
func NeededSpace(baseDir string) uint64 {
	return HeaderFixedSize
}
