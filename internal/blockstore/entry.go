package blockstore

// RawEntry is the wire-layout view of a cib_entry: six u32 timestamps/ids
// plus a u64 pointer, exactly EntrySize bytes. Package archive builds its
// richer Entry type on top of this.
type RawEntry struct {
	UID      uint32
	GID      uint32
	Mode     uint32
	Created  uint32
	Modified uint32
	Accessed uint32
	Pointer  uint64
}

// DecodeEntry reads a RawEntry from a EntrySize-byte slice.
func DecodeEntry(b []byte) RawEntry {
	return RawEntry{
		UID:      getU32(b, eOffUID),
		GID:      getU32(b, eOffGID),
		Mode:     getU32(b, eOffMode),
		Created:  getU32(b, eOffCreated),
		Modified: getU32(b, eOffModified),
		Accessed: getU32(b, eOffAccessed),
		Pointer:  getU64(b, eOffPointer),
	}
}

// EncodeEntry writes e into a EntrySize-byte slice.
func EncodeEntry(b []byte, e RawEntry) {
	putU32(b, eOffUID, e.UID)
	putU32(b, eOffGID, e.GID)
	putU32(b, eOffMode, e.Mode)
	putU32(b, eOffCreated, e.Created)
	putU32(b, eOffModified, e.Modified)
	putU32(b, eOffAccessed, e.Accessed)
	putU64(b, eOffPointer, e.Pointer)
}

// EntryPointer reads just the pointer field.
func EntryPointer(b []byte) uint64 { return getU64(b, eOffPointer) }

// SetEntryPointer writes just the pointer field.
func SetEntryPointer(b []byte, v uint64) { putU64(b, eOffPointer, v) }

// ListBlockCount, ListBlockBitmap and ListBlockGroupBitmap read a list
// block's header fields (cib_list_block's count/bitmap/list_block_bitmap).
func ListBlockCount(buf []byte) uint32         { return getU32(buf, lbOffCount) }
func SetListBlockCount(buf []byte, v uint32)   { putU32(buf, lbOffCount, v) }
func ListBlockBitmap(buf []byte) uint32        { return getU32(buf, lbOffBitmap) }
func SetListBlockBitmap(buf []byte, v uint32)  { putU32(buf, lbOffBitmap, v) }
func ListBlockGroupBitmap(buf []byte) uint64   { return getU64(buf, lbOffListBlockBitmap) }
func SetListBlockGroupBitmap(buf []byte, v uint64) {
	putU64(buf, lbOffListBlockBitmap, v)
}

// EntryAt returns the EntrySize-byte slice for slot (0..ListEntriesPerBlock)
// within a list block buffer.
func EntryAt(buf []byte, slot uint64) []byte {
	off := lbOffEntries + int(slot)*EntrySize
	return buf[off : off+EntrySize]
}

// InitListBlock zeroes a list block and sets the empty-slot-bitmap
// sentinel, matching CIBListBlockInit.
func InitListBlock(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	SetListBlockBitmap(buf, ListBlockEmpty)
}
