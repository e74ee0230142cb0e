package archive

import (
	"fmt"
	"strings"

	"github.com/ChrisKom04/CIBArchiever/internal/blockstore"
)

// getFreeSpotRec walks/grows the nest-level bitmap tree to find a single
// free entry slot, marking it used along the way. Grounded on
// CIBListGetFreeSpotRec.
func (t *Table) getFreeSpotRec(listBlocks uint32, firstOfSet uint32, nestLevel uint8, full *bool) (uint64, error) {
	if nestLevel == 0 {
		list := t.listBlock(uint64(firstOfSet))
		insertBlock := firstOfSet + uint32(blockstore.BitmapFindZeroBit(blockstore.ListBlockGroupBitmap(list)))

		if insertBlock == listBlocks {
			if err := t.fp.GrowListSize(1); err != nil {
				return 0, err
			}
			list = t.listBlock(uint64(firstOfSet))
		}

		insertList := t.listBlock(uint64(insertBlock))
		index := blockstore.BitmapFindZeroBit32(blockstore.ListBlockBitmap(insertList))

		blockstore.SetListBlockCount(insertList, blockstore.ListBlockCount(insertList)+1)
		blockstore.SetListBlockBitmap(insertList, blockstore.ListBlockBitmap(insertList)|(1<<uint(index)))

		if blockstore.ListBlockBitmap(insertList) == 0xFFFFFFFF {
			list = t.listBlock(uint64(firstOfSet))
			blockstore.SetListBlockGroupBitmap(list, blockstore.ListBlockGroupBitmap(list)|(1<<(insertBlock-firstOfSet)))
			*full = blockstore.ListBlockGroupBitmap(list) == ^uint64(0)
		} else {
			*full = false
		}

		return uint64(insertBlock)*blockstore.ListEntriesPerBlock + uint64(index), nil
	}

	list := t.listBlock(uint64(firstOfSet) + uint64(nestLevel))
	index := uint32(blockstore.BitmapFindZeroBit(blockstore.ListBlockGroupBitmap(list)))

	targetSet := firstOfSet + (index << (6 * nestLevel))
	targetBlock := targetSet + uint32(nestLevel) - 1

	if targetSet == listBlocks {
		if err := t.fp.GrowListSize(1); err != nil {
			return 0, err
		}
		listBlocks++
	}

	diff := uint32(0)
	if targetBlock >= listBlocks {
		diff = targetBlock - listBlocks + 1
	}
	id, err := t.getFreeSpotRec(listBlocks, targetSet, uint8(int(nestLevel)-1-int(diff)), full)
	if err != nil {
		return 0, err
	}

	if *full {
		list = t.listBlock(uint64(firstOfSet) + uint64(nestLevel))
		blockstore.SetListBlockGroupBitmap(list, blockstore.ListBlockGroupBitmap(list)|(1<<index))
		*full = blockstore.ListBlockGroupBitmap(list) == ^uint64(0)
	}

	return id, nil
}

// GetFreeSpot finds a free entry id and marks it used, growing the nest
// level if the whole tree is now full. Grounded on CIBListGetFreeSpot.
func (t *Table) GetFreeSpot() (uint64, error) {
	nestLevel := t.h.NestLevel()
	var full bool
	id, err := t.getFreeSpotRec(t.h.ListBlocks(), 0, nestLevel, &full)
	if err != nil {
		return 0, err
	}

	if full {
		nestLevel++
		t.h.SetNestLevel(nestLevel)
		list := t.listBlock(uint64(nestLevel))
		blockstore.SetListBlockGroupBitmap(list, 1)
	}

	t.h.SetListEntries(t.h.ListEntries() + 1)
	return id, nil
}

// updateGroupBitmap clears the appropriate subset bit up the bitmap tree
// when a block transitions from full to not-full. Grounded on
// CIBListUpdateGroupBitmap.
func (t *Table) updateGroupBitmap(insertedBlock uint32, nestLevel, maxNest uint8) {
	firstOfSet := insertedBlock &^ ((64 << (6 * nestLevel)) - 1)
	posInSet := insertedBlock - firstOfSet

	list := t.listBlock(uint64(firstOfSet) + uint64(nestLevel))
	subset := posInSet >> (6 * nestLevel)

	if blockstore.ListBlockGroupBitmap(list) == ^uint64(0) && nestLevel < maxNest {
		t.updateGroupBitmap(insertedBlock, nestLevel+1, maxNest)
		list = t.listBlock(uint64(firstOfSet) + uint64(nestLevel))
	}

	blockstore.SetListBlockGroupBitmap(list, blockstore.ListBlockGroupBitmap(list)&^(1<<subset))
}

// FreeEntry marks id's slot free and zeroes its entry record. Grounded on
// CIBListFreeEntry.
func (t *Table) FreeEntry(id uint64) {
	block, slot := entryOffset(id)
	insertedBlock := uint32(block)
	index := uint32(slot)

	list := t.listBlock(block)
	if blockstore.ListBlockBitmap(list) == 0xFFFFFFFF {
		t.updateGroupBitmap(insertedBlock, 0, t.h.NestLevel())
		list = t.listBlock(block)
	}

	blockstore.SetListBlockBitmap(list, blockstore.ListBlockBitmap(list)&^(1<<index))
	blockstore.SetListBlockCount(list, blockstore.ListBlockCount(list)-1)

	blockstore.EncodeEntry(blockstore.EntryAt(list, slot), blockstore.RawEntry{})
	t.h.SetListEntries(t.h.ListEntries() - 1)
}

// InsertEntryUnderDir inserts entryID under parentID's node chain as name,
// and — if entryID itself names a directory — allocates its own node
// block. The caller must ensure parentID is a directory. Grounded on
// CIBListInsertEntryUnderDir.
func (t *Table) InsertEntryUnderDir(nodes *NodeChain, entryID, parentID uint64, name string) error {
	parent := t.Get(parentID)
	if err := nodes.InsertEntry(uint32(parent.Pointer), entryID, name); err != nil {
		return err
	}

	entry := t.Get(entryID)
	if entry.IsDir() {
		block, err := t.fp.RequestNodeBlock()
		if err != nil {
			return err
		}
		nodes.Init(block, parentID, entryID)
		t.SetPointer(entryID, uint64(block))
	}
	return nil
}

// PrintStructure renders the directory tree rooted at currentID (named
// name) to w, one directory's full membership per section: each member's
// entry id and name, without modes or other metadata. Modeled on
// CIBListPrintStructure, minus color codes (see SPEC_FULL.md's
// supplemented-feature note).
func (t *Table) PrintStructure(w *strings.Builder, nodes *NodeChain, currentID uint64, name string) {
	current := t.Get(currentID)
	block := uint32(current.Pointer)

	if currentID != 0 {
		w.WriteByte('\n')
	}
	fmt.Fprintf(w, "Directory: %d. %s\n", currentID, name)
	w.WriteString(strings.Repeat("-", 75) + "\n")

	entries := nodes.GetDirEntries(block)
	for _, de := range entries {
		fmt.Fprintf(w, "%6d. %s\n", de.ID, de.Name)
	}
	w.WriteString(strings.Repeat("-", 75) + "\n\n")

	for _, de := range entries {
		if t.Get(de.ID).IsDir() {
			t.PrintStructure(w, nodes, de.ID, de.Name)
		}
	}
}

// GetDirEntries returns the <id, name> pairs under dirID, or nil if dirID
// does not name a directory. Grounded on CIBListGetDirEntries.
func (t *Table) GetDirEntries(nodes *NodeChain, dirID uint64) []DirEntry {
	dir := t.Get(dirID)
	if !dir.IsDir() {
		return nil
	}
	return nodes.GetDirEntries(uint32(dir.Pointer))
}

// Init sets up the entry table with entry id 0 as root (always a
// directory). Grounded on CIBListInit.
func (t *Table) Init(nodes *NodeChain, root Entry) error {
	blockstore.InitListBlock(t.listBlock(0))

	list := t.listBlock(0)
	blockstore.SetListBlockBitmap(list, blockstore.ListBlockBitmap(list)|1)
	blockstore.SetListBlockCount(list, 1)
	t.Set(0, root)
	t.h.SetListEntries(1)

	block, err := t.fp.RequestNodeBlock()
	if err != nil {
		return err
	}
	nodes.Init(block, 0, 0)
	t.SetPointer(0, uint64(block))
	return nil
}
