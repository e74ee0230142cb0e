// Package archive implements the CIB archive's directory and entry-table
// semantics (C5–C8) on top of internal/blockstore's raw block engine, the
// way dbm builds a BTree on top of lldb's allocator.
package archive

import (
	"os"
	"time"

	"github.com/ChrisKom04/CIBArchiever/internal/blockstore"
)

// The stored mode field holds the OS's raw st_mode bits (syscall.Stat_t
// convention), not Go's os.FileMode — CIBEntryIsDir/IsLink/IsFile compare
// against S_IFDIR/S_IFLNK/S_IFREG exactly, so Entry does the same.
const (
	sIFMT  = 0170000
	sIFDIR = 0040000
	sIFLNK = 0120000
	sIFREG = 0100000
)

// Entry mirrors cib_entry: the fixed-size record stored per archive member
// (file, directory or symlink).
type Entry struct {
	UID      uint32
	GID      uint32
	Mode     uint32
	Created  uint32
	Modified uint32
	Accessed uint32
	Pointer  uint64 // data-chunk block id (file/link) or node-block id (dir)
}

// IsDir, IsLink and IsFile classify an Entry by its stored mode bits.
func (e Entry) IsDir() bool  { return e.Mode&sIFMT == sIFDIR }
func (e Entry) IsLink() bool { return e.Mode&sIFMT == sIFLNK }
func (e Entry) IsFile() bool { return e.Mode&sIFMT == sIFREG }

// EntryFromFileInfo builds an Entry from an lstat result, the Go analogue
// of CIBEntryCreate. The pointer field is left at 0; callers set it once
// the backing data chunk or node block is known.
func EntryFromFileInfo(info os.FileInfo, rawMode uint32, uid, gid uint32) Entry {
	return Entry{
		UID:      uid,
		GID:      gid,
		Mode:     rawMode,
		Created:  uint32(info.ModTime().Unix()), // ctime unavailable via os.FileInfo; the modification time stands in for it
		Modified: uint32(info.ModTime().Unix()),
		Accessed: uint32(time.Now().Unix()),
	}
}

func entryOffset(id uint64) (block uint64, slot uint64) {
	return id / blockstore.ListEntriesPerBlock, id % blockstore.ListEntriesPerBlock
}

// Table is the C5 entry table: a bitmap-indexed array of Entry records
// spread across list blocks, with a nest-level bitmap tree for O(log64 n)
// free-slot search. Grounded on
// original_source/src/Metadata/cib_struct.c's CIBList* functions.
type Table struct {
	m  *blockstore.Mapping
	h  *blockstore.Header
	md *blockstore.MD
	fp *blockstore.FreePool
}

// NewTable wraps the metadata region's entry table.
func NewTable(m *blockstore.Mapping, h *blockstore.Header, md *blockstore.MD, fp *blockstore.FreePool) *Table {
	return &Table{m: m, h: h, md: md, fp: fp}
}

func (t *Table) listBlock(i uint64) []byte { return t.md.ListBlock(i) }

func entryToRaw(e Entry) blockstore.RawEntry {
	return blockstore.RawEntry{
		UID: e.UID, GID: e.GID, Mode: e.Mode,
		Created: e.Created, Modified: e.Modified, Accessed: e.Accessed,
		Pointer: e.Pointer,
	}
}

func rawToEntry(r blockstore.RawEntry) Entry {
	return Entry{
		UID: r.UID, GID: r.GID, Mode: r.Mode,
		Created: r.Created, Modified: r.Modified, Accessed: r.Accessed,
		Pointer: r.Pointer,
	}
}

// Get reads the entry stored at id.
func (t *Table) Get(id uint64) Entry {
	block, slot := entryOffset(id)
	buf := blockstore.EntryAt(t.listBlock(block), slot)
	return rawToEntry(blockstore.DecodeEntry(buf))
}

// Set writes e at id, including its pointer field — the Go analogue of
// CIBEntryInit (full overwrite, unlike Update which preserves Pointer).
func (t *Table) Set(id uint64, e Entry) {
	block, slot := entryOffset(id)
	buf := blockstore.EntryAt(t.listBlock(block), slot)
	blockstore.EncodeEntry(buf, entryToRaw(e))
}

// Update overwrites everything but Pointer, matching CIBEntryUpdate.
func (t *Table) Update(id uint64, e Entry) {
	cur := t.Get(id)
	e.Pointer = cur.Pointer
	t.Set(id, e)
}

// SetPointer updates only the pointer field, matching CIBEntrySetPointer.
func (t *Table) SetPointer(id uint64, pointer uint64) {
	block, slot := entryOffset(id)
	buf := blockstore.EntryAt(t.listBlock(block), slot)
	blockstore.SetEntryPointer(buf, pointer)
}

// PointerOf reads only the pointer field, matching CIBEntryGetPointer.
func (t *Table) PointerOf(id uint64) uint64 {
	block, slot := entryOffset(id)
	return blockstore.EntryPointer(blockstore.EntryAt(t.listBlock(block), slot))
}
