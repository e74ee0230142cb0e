// Package blockstore implements the on-disk container format described by
// the CIB archive: a memory-mapped file split into a header, a data region
// of variable-size chunks, and a metadata region of fixed-size blocks. It is
// the low-level engine, analogous in role to how lldb underlies dbm in the
// package this one is descended from — blockstore knows nothing about
// paths, directories or archive semantics, only about blocks, chunks and
// free lists.
package blockstore

import "encoding/binary"

// Block sizes. DATA blocks and METADATA blocks live in disjoint address
// spaces but happen to share the same size.
const (
	DataBlockSize = 1024
	MDBlockSize   = 1024

	dataBlockShift = 10
	mdBlockShift   = 10
)

// Entry table layout, grounded on
// original_source/src/Metadata/cib_struct.c's cib_entry/cib_list_block.
const (
	EntrySize           = 32 // uid,gid,mode,created,modified,accessed: 6x u32, pointer: u64
	ListEntriesPerBlock = 31

	// ListBlockEmpty is the sentinel bit (bit 31) a list block's slot
	// bitmap carries permanently set, so "all slots used" reads as
	// 0xFFFFFFFF instead of colliding with an all-zero bitmap.
	ListBlockEmpty = 0x80000000

	eOffUID      = 0
	eOffGID      = 4
	eOffMode     = 8
	eOffCreated  = 12
	eOffModified = 16
	eOffAccessed = 20
	eOffPointer  = 24

	lbOffCount           = 0 // u32
	lbOffBitmap          = 4 // u32, slot-occupancy bitmap (+ ListBlockEmpty sentinel)
	lbOffEntries         = 8 // [31]cib_entry, 32 bytes each
	lbOffListBlockBitmap = lbOffEntries + ListEntriesPerBlock*EntrySize // u64, nest-level group bitmap
)

// Directory node-block layout, grounded on cib_struct.c's cib_node.
const (
	NodeNamesPerBlock = 3
	nodeNameCap       = 256

	nbOffName      = 0
	nbOffEntry     = nbOffName + NodeNamesPerBlock*nodeNameCap // [3]u64
	nbOffCount     = nbOffEntry + NodeNamesPerBlock*8          // u32
	nbOffSelf      = nbOffCount + 4
	nbOffParent    = nbOffSelf + 4
	nbOffNext      = nbOffParent + 4
	nbOffPrevious  = nbOffNext + 4
	nbOffNextFlag  = nbOffPrevious + 4
	nbOffPrevFlag  = nbOffNextFlag + 1
)

// Node-block free pool layout (metadata block 0 is the free-node pool),
// grounded on original_source/src/Metadata/freelist.c's free_list/free_node
// structs.
const (
	FreeNodeArrayCap  = 253
	FreeNodePoolBlock = 0

	fpOffTotalFree = 0 // u32
	fpOffHeader    = 4 // u32 (MDBlockId)
	fpOffArray     = 8 // [253]u32
	fpOffArrStart  = fpOffArray + FreeNodeArrayCap*4
	fpOffArrCount  = fpOffArrStart + 1

	fnOffNext     = 0 // u32 (MDBlockId), free-node-block's own "next" link
	fnOffNextFlag = 4 // u8
)

// Data free index layout (data block 0 holds the two-tier free index),
// grounded on original_source/src/Data/data.c's data_free_list struct.
const (
	DataFreeIndexArrayCap = 63
	DataFreeIndexBlock    = 0

	flOffListHead    = 0           // u64
	flOffChunks      = 8           // [63]u64
	flOffBlocksCount = flOffChunks + DataFreeIndexArrayCap*8 // [63]u64
	flOffArrStart    = flOffBlocksCount + DataFreeIndexArrayCap*8
	flOffArrCount    = flOffArrStart + 1
	flOffListFlag    = flOffArrCount + 1
)

// Used data chunk layout (original_source's struct file), grounded on
// data.c's `typedef struct file`.
const (
	dcOffUsed   = 0 // u8, always 1 for a used chunk
	dcOffZipped = 1 // u8
	dcOffBlocks = 8 // u64: chunk size in blocks
	dcOffSize   = 16 // u64: payload size in bytes
	dcOffData   = 24
	dcDataCap   = DataBlockSize - dcOffData // 1000
)

// Free data chunk layout (original_source's struct data_free_chunk).
const (
	fcOffUsed       = 0 // u8, always 0 for a free chunk
	fcOffNextFlag   = 1 // u8
	fcOffPrevFlag   = 2 // u8
	fcOffBlockCount = 8  // u64
	fcOffPrevBlock  = 16 // u64
	fcOffNextBlock  = 24 // u64
)

// Header field offsets and sizes. header_size = max(sizeof(header fields),
// 33 + len(base_dir) + 1); BaseDirCap is chosen so the fixed struct size
// always dominates, so HeaderSize is effectively constant.
const (
	hOffDataSize        = 0
	hOffMDSize           = 8
	hOffListEntries      = 16
	hOffListBlocks       = 24
	hOffFreeNodeBlocks   = 28
	hOffNestLevel        = 32
	hOffBaseDir          = 33

	BaseDirCap     = 7 + 4096
	HeaderFixedSize = hOffBaseDir + BaseDirCap
)

// little-endian byte packing helpers, in the spirit of lldb/falloc.go's
// h2b/b2h handle-encoding helpers: every on-disk integer field goes through
// one of these rather than an aliased Go struct, so the layout is exactly
// what the spec's byte offsets say it is.

func getU8(b []byte, off int) uint8 { return b[off] }

func putU8(b []byte, off int, v uint8) { b[off] = v }

func getU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

func getU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

func putU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// BitmapFindZeroBit returns the index of the lowest zero bit of a 64-bit
// word via branchless binary search on the inverted word, per spec §9.
func BitmapFindZeroBit(bitmap uint64) int {
	inv := ^bitmap
	if inv == 0 {
		return 64
	}
	// isolate the lowest set bit of inv, then take its log2.
	lsb := inv & (-inv)
	idx := 0
	if lsb&0xFFFFFFFF00000000 != 0 {
		idx += 32
	}
	if lsb&0xFFFF0000FFFF0000 != 0 {
		idx += 16
	}
	if lsb&0xFF00FF00FF00FF00 != 0 {
		idx += 8
	}
	if lsb&0xF0F0F0F0F0F0F0F0 != 0 {
		idx += 4
	}
	if lsb&0xCCCCCCCCCCCCCCCC != 0 {
		idx += 2
	}
	if lsb&0xAAAAAAAAAAAAAAAA != 0 {
		idx += 1
	}
	return idx
}

// BitmapFindZeroBit32 is the 32-bit counterpart used for list-block slot
// bitmaps (bit 31 is the permanent sentinel, so a full slot bitmap is
// 0xFFFFFFFF exactly like an all-ones 32-bit word).
func BitmapFindZeroBit32(bitmap uint32) int {
	if bitmap == 0xFFFFFFFF {
		return 32
	}
	return BitmapFindZeroBit(uint64(bitmap) | 0xFFFFFFFF00000000)
}
