package blockstore

import "golang.org/x/xerrors"

// extraBlocksNeeded mirrors EXTRA_BLOCKS_NEEDED: a newly requested chunk
// always reserves one block beyond CalculateNeededBlocks' count for the
// payload plus header, giving room for the trailing boundary tag without
// spilling into the next chunk.
const extraBlocksNeeded = 1

// Allocator is the C3 data-chunk allocator: a boundary-tag, best-fit
// allocator over the DATA region, grounded on
// original_source/src/Data/data.c. Data block 0 always holds the two-tier
// free index (63-slot sorted ring buffer plus overflow list); real chunks
// start at block 1.
type Allocator struct {
	m *Mapping
	h *Header
}

// NewAllocator wraps m's data region, using h for data-size bookkeeping.
func NewAllocator(m *Mapping, h *Header) *Allocator { return &Allocator{m: m, h: h} }

func (a *Allocator) block(i uint64) []byte { return a.m.DataBlock(i) }

// setTailTag writes the boundary tag for a chunk starting at block `start`
// and spanning `count` blocks: the last 8 bytes of the chunk's last block
// always hold the block count, for used and free chunks alike, letting a
// neighbor in either direction identify this chunk's extent in O(1).
func (a *Allocator) setTailTag(start, count uint64) {
	data := a.m.Data()
	off := (start+count)<<dataBlockShift - 8
	putU64(data, int(off), count)
}

// tailTagBefore reads the boundary tag belonging to whatever chunk ends
// immediately before block `start`.
func (a *Allocator) tailTagBefore(start uint64) uint64 {
	data := a.m.Data()
	off := start<<dataBlockShift - 8
	return getU64(data, int(off))
}

// isUsed reports whether the chunk starting at block i is currently in use.
func (a *Allocator) isUsed(i uint64) bool { return getU8(a.block(i), dcOffUsed) == 1 }

// --- free chunk accessors (DFreeChunk*) ---

func (a *Allocator) chunkInit(start, count uint64) {
	buf := a.block(start)
	for i := range buf {
		buf[i] = 0
	}
	putU64(buf, fcOffBlockCount, count)
	a.setTailTag(start, count)
}

func (a *Allocator) chunkBlockCount(block uint64) uint64 { return getU64(a.block(block), fcOffBlockCount) }

func (a *Allocator) chunkNext(block uint64) (next uint64, ok bool) {
	buf := a.block(block)
	return getU64(buf, fcOffNextBlock), getU8(buf, fcOffNextFlag) == 1
}

func (a *Allocator) chunkPrevious(block uint64) (prev uint64, ok bool) {
	buf := a.block(block)
	return getU64(buf, fcOffPrevBlock), getU8(buf, fcOffPrevFlag) == 1
}

func (a *Allocator) chunkSetNext(block, next uint64) {
	buf := a.block(block)
	putU8(buf, fcOffNextFlag, 1)
	putU64(buf, fcOffNextBlock, next)
}

func (a *Allocator) chunkSetPrevious(block, prev uint64) {
	buf := a.block(block)
	putU8(buf, fcOffPrevFlag, 1)
	putU64(buf, fcOffPrevBlock, prev)
}

func (a *Allocator) chunkRemoveNext(block uint64)     { putU8(a.block(block), fcOffNextFlag, 0) }
func (a *Allocator) chunkRemovePrevious(block uint64) { putU8(a.block(block), fcOffPrevFlag, 0) }

// --- free list (two-tier index) accessors, data block 0 ---

func (a *Allocator) fl() []byte { return a.block(DataFreeIndexBlock) }

func (a *Allocator) flListHead() uint64      { return getU64(a.fl(), flOffListHead) }
func (a *Allocator) flSetListHead(v uint64)  { putU64(a.fl(), flOffListHead, v) }
func (a *Allocator) flArrStart() int         { return int(getU8(a.fl(), flOffArrStart)) }
func (a *Allocator) flSetArrStart(v int)     { putU8(a.fl(), flOffArrStart, uint8(v)) }
func (a *Allocator) flArrCount() int         { return int(getU8(a.fl(), flOffArrCount)) }
func (a *Allocator) flSetArrCount(v int)     { putU8(a.fl(), flOffArrCount, uint8(v)) }
func (a *Allocator) flListFlag() bool        { return getU8(a.fl(), flOffListFlag) == 1 }
func (a *Allocator) flSetListFlag(v bool) {
	b := uint8(0)
	if v {
		b = 1
	}
	putU8(a.fl(), flOffListFlag, b)
}

func (a *Allocator) flChunk(i int) uint64 {
	return getU64(a.fl(), flOffChunks+i*8)
}
func (a *Allocator) flSetChunk(i int, v uint64) {
	putU64(a.fl(), flOffChunks+i*8, v)
}
func (a *Allocator) flBlocksCount(i int) uint64 {
	return getU64(a.fl(), flOffBlocksCount+i*8)
}
func (a *Allocator) flSetBlocksCount(i int, v uint64) {
	putU64(a.fl(), flOffBlocksCount+i*8, v)
}

func ringMod(i int) int {
	for i < 0 {
		i += DataFreeIndexArrayCap
	}
	return i % DataFreeIndexArrayCap
}

// Init sets up the free index (empty) and, if blocks > 1, a single free
// chunk spanning blocks [1, blocks). Matches DataInit.
func (a *Allocator) Init(blocks uint64) {
	buf := a.fl()
	for i := range buf {
		buf[i] = 0
	}
	if blocks > 1 {
		a.InsertChunk(1, blocks-1)
	}
	a.h.SetDataSize(blocks << dataBlockShift)
}

// InsertFreeBlocks marks the trailing `blocks` blocks of the data region as
// one new free chunk — used after growing the region for direct appends.
func (a *Allocator) InsertFreeBlocks(blocks uint64) {
	if blocks == 0 {
		return
	}
	a.InsertChunk((a.h.DataSize()>>dataBlockShift)-blocks, blocks)
}

// Grow extends the DATA region by extraBlocks blocks (remapping and
// shifting METADATA forward via Mapping.GrowDataAndShiftMD) and registers
// the new space as one free chunk. Used by append (spec §4.8: "grow DATA by
// the data_blocks estimate ... add new DATA blocks to the free index").
func (a *Allocator) Grow(extraBlocks uint64) error {
	if extraBlocks == 0 {
		return nil
	}
	newDataSize := a.h.DataSize() + extraBlocks<<dataBlockShift
	if err := a.m.GrowDataAndShiftMD(newDataSize); err != nil {
		return err
	}
	a.h.SetDataSize(newDataSize)
	a.InsertFreeBlocks(extraBlocks)
	return nil
}

// InsertChunk inserts a chunk of `count` blocks starting at `start` into the
// free index, keeping the array sorted descending by size and spilling into
// the overflow list once the array is full. Grounded on DFreeListInsertChunk.
func (a *Allocator) InsertChunk(start, count uint64) {
	a.chunkInit(start, count)

	arrStart, arrCount := a.flArrStart(), a.flArrCount()
	index := -1
	for i := 0; i < arrCount; i++ {
		iter := ringMod(arrStart + i)
		if count > a.flBlocksCount(iter) {
			index = iter
			break
		}
	}

	switch {
	case index == -1 && arrCount != DataFreeIndexArrayCap:
		idx := ringMod(arrCount + arrStart)
		a.flSetChunk(idx, start)
		a.flSetBlocksCount(idx, count)
		a.flSetArrCount(arrCount + 1)

	case index != -1 && arrCount != DataFreeIndexArrayCap:
		lastIndex := ringMod(arrStart + arrCount - 1)
		for i := ringMod(lastIndex + 1); i != index; {
			prev := ringMod(i - 1)
			a.flSetChunk(i, a.flChunk(prev))
			a.flSetBlocksCount(i, a.flBlocksCount(prev))
			i = prev
		}
		a.flSetChunk(index, start)
		a.flSetBlocksCount(index, count)
		a.flSetArrCount(arrCount + 1)

	case index == -1 && arrCount == DataFreeIndexArrayCap:
		if !a.flListFlag() {
			a.flSetListFlag(true)
			a.flSetListHead(start)
			return
		}
		var last uint64
		iter, ok := a.flListHead(), true
		for ok {
			if count >= a.chunkBlockCount(iter) {
				a.chunkSetNext(start, iter)
				previous, exists := a.chunkPrevious(iter)
				a.chunkSetPrevious(iter, start)
				if exists {
					a.chunkSetPrevious(start, previous)
					a.chunkSetNext(previous, start)
				} else {
					a.flSetListHead(start)
				}
				return
			}
			last = iter
			iter, ok = a.chunkNext(iter)
		}
		a.chunkSetNext(last, start)
		a.chunkSetPrevious(start, last)

	default: // index != -1 && arrCount == DataFreeIndexArrayCap
		lastIndex := ringMod(arrStart + arrCount - 1)
		if a.flListFlag() {
			a.chunkSetNext(a.flChunk(lastIndex), a.flListHead())
			a.chunkSetPrevious(a.flListHead(), a.flChunk(lastIndex))
		}
		a.flSetListHead(a.flChunk(lastIndex))
		a.flSetListFlag(true)
		for i := lastIndex; i != index; {
			prev := ringMod(i - 1)
			a.flSetChunk(i, a.flChunk(prev))
			a.flSetBlocksCount(i, a.flBlocksCount(prev))
			i = prev
		}
		a.flSetChunk(index, start)
		a.flSetBlocksCount(index, count)
	}
}

// RemoveChunk removes the free chunk starting at `start` from the free
// index. The caller must ensure it is actually a free chunk currently
// tracked by the index. Grounded on DFreeListRemoveChunk.
func (a *Allocator) RemoveChunk(start uint64) {
	arrStart, arrCount := a.flArrStart(), a.flArrCount()
	if arrCount <= 1 {
		a.flSetArrCount(0)
		return
	}

	index := -1
	for i := 0; i < arrCount; i++ {
		iter := ringMod(arrStart + i)
		if a.flChunk(iter) == start {
			index = iter
			break
		}
	}

	if index != -1 {
		lastIndex := ringMod(arrStart + arrCount - 1)
		for i := index; i != lastIndex; {
			next := ringMod(i + 1)
			a.flSetChunk(i, a.flChunk(next))
			a.flSetBlocksCount(i, a.flBlocksCount(next))
			i = next
		}

		if !a.flListFlag() {
			a.flSetArrCount(arrCount - 1)
			return
		}
		head := a.flListHead()
		a.flSetChunk(lastIndex, head)
		a.flSetBlocksCount(lastIndex, a.chunkBlockCount(head))
		next, ok := a.chunkNext(head)
		if ok {
			a.flSetListHead(next)
			a.chunkRemovePrevious(next)
		} else {
			a.flSetListFlag(false)
		}
		return
	}

	if !a.flListFlag() {
		return
	}
	prev, prevOK := a.chunkPrevious(start)
	next, nextOK := a.chunkNext(start)
	switch {
	case prevOK && nextOK:
		a.chunkSetNext(prev, next)
		a.chunkSetPrevious(next, prev)
	case prevOK:
		a.chunkRemoveNext(prev)
	case nextOK:
		a.chunkRemovePrevious(next)
		a.flSetListHead(next)
	default:
		a.flSetListFlag(false)
	}
}

// RequestChunk returns the first block of a chunk holding at least
// blockCount blocks, splitting a best-fit match from the free index or
// growing the data region (remap) when nothing large enough is free.
// Grounded on DFreeListRequestChunk.
func (a *Allocator) RequestChunk(blockCount uint64) (uint64, error) {
	arrStart, arrCount := a.flArrStart(), a.flArrCount()
	if arrCount > 0 && a.flBlocksCount(arrStart) >= blockCount {
		previous, current := 0, 1
		for ; current < arrCount; current, previous = current+1, previous+1 {
			index := ringMod(arrStart + current)
			if a.flBlocksCount(index) < blockCount {
				break
			}
		}

		target := a.flChunk(ringMod(arrStart + previous))
		targetTotal := a.flBlocksCount(ringMod(arrStart + previous))

		a.RemoveChunk(target)
		if targetTotal != blockCount {
			a.InsertChunk(target+blockCount, targetTotal-blockCount)
		}
		return target, nil
	}

	newChunk := a.h.DataSize() >> dataBlockShift
	extraSpace := blockCount << dataBlockShift
	newDataSize := a.h.DataSize() + extraSpace
	if err := a.m.GrowDataAndShiftMD(newDataSize); err != nil {
		return 0, xerrors.Errorf("blockstore: grow data region: %w", err)
	}
	a.h.SetDataSize(newDataSize)
	return newChunk, nil
}

// RemoveLastChunk finds the free chunk (if any) that sits at the very end
// of the data region and, if found, shrinks the data region to reclaim it,
// shifting METADATA back accordingly. Grounded on DFreeListRemoveLastChunk.
func (a *Allocator) RemoveLastChunk() error {
	endBlock := a.h.DataSize() >> dataBlockShift
	arrStart, arrCount := a.flArrStart(), a.flArrCount()

	var last uint64
	found := false
	for i := 0; i < arrCount && !found; i++ {
		index := ringMod(arrStart + i)
		if a.flChunk(index)+a.flBlocksCount(index) == endBlock {
			last = a.flChunk(index)
			a.RemoveChunk(a.flChunk(index))
			found = true
		}
	}

	if a.flListFlag() && !found {
		current := a.flListHead()
		for {
			count := a.chunkBlockCount(current)
			if count+current == endBlock {
				a.RemoveChunk(current)
				last = current
				found = true
				break
			}
			next, ok := a.chunkNext(current)
			if !ok {
				break
			}
			current = next
		}
	}

	if !found {
		return ErrNoTrailingFreeChunk
	}
	newDataSize := last << dataBlockShift
	if err := a.m.ShrinkDataAndShiftMD(newDataSize); err != nil {
		return err
	}
	a.h.SetDataSize(newDataSize)
	return nil
}

// CalculateNeededBlocks returns the number of blocks required to hold size
// bytes of payload plus the fixed per-chunk bookkeeping overhead.
func CalculateNeededBlocks(size uint64) uint64 {
	total := size + FileExtraData
	blocks := total >> dataBlockShift
	if total&(DataBlockSize-1) > 0 {
		blocks++
	}
	return blocks
}

// FileExtraData is the fixed per-chunk bookkeeping overhead budgeted on top
// of a payload's raw byte count, matching FILE_EXTRA_DATA.
const FileExtraData = 32

// InsertBytes copies data into a freshly allocated chunk, marking it used
// and (optionally) zipped. Grounded on DataInsertBytes.
func (a *Allocator) InsertBytes(data []byte, zipped bool) (uint64, error) {
	requiredBlocks := CalculateNeededBlocks(uint64(len(data))) + extraBlocksNeeded
	block, err := a.RequestChunk(requiredBlocks)
	if err != nil {
		return 0, err
	}

	buf := a.block(block)
	putU8(buf, dcOffUsed, 1)
	if zipped {
		putU8(buf, dcOffZipped, 1)
	} else {
		putU8(buf, dcOffZipped, 0)
	}
	putU64(buf, dcOffBlocks, requiredBlocks)
	putU64(buf, dcOffSize, uint64(len(data)))

	// The chunk's header lives in its first block, but its payload area is
	// contiguous across every block the chunk reserved — large payloads
	// spill past the first block's nominal 1000-byte field into the
	// following blocks of the same chunk, exactly like data.c's memcpy into
	// dest->data, which writes straight past the struct when size is large.
	region := a.m.Data()
	payloadOff := block<<dataBlockShift + dcOffData
	copy(region[payloadOff:payloadOff+uint64(len(data))], data)

	a.setTailTag(block, requiredBlocks)
	return block, nil
}

// ChunkInfo describes a used chunk's payload metadata, as read by Extract*.
type ChunkInfo struct {
	Size   uint64
	Zipped bool
}

// Info returns a used chunk's metadata.
func (a *Allocator) Info(block uint64) ChunkInfo {
	buf := a.block(block)
	return ChunkInfo{
		Size:   getU64(buf, dcOffSize),
		Zipped: getU8(buf, dcOffZipped) == 1,
	}
}

// Payload returns the stored bytes of a used chunk, a slice directly over
// the contiguous region the chunk's blocks reserved.
func (a *Allocator) Payload(block uint64) []byte {
	size := getU64(a.block(block), dcOffSize)
	region := a.m.Data()
	off := block<<dataBlockShift + dcOffData
	return region[off : off+size]
}

// Delete frees the chunk starting at block, coalescing with its immediate
// data-region neighbors when they are themselves free. Grounded on
// DataDeleteFile.
func (a *Allocator) Delete(block uint64) {
	newSize := getU64(a.block(block), dcOffBlocks)

	if (block+newSize)<<dataBlockShift < a.h.DataSize() {
		nextID := block + newSize
		if !a.isUsed(nextID) {
			newSize += a.chunkBlockCount(nextID)
			a.RemoveChunk(nextID)
		}
	}

	if block > 1 {
		previousID := block - a.tailTagBefore(block)
		if !a.isUsed(previousID) {
			newSize += a.chunkBlockCount(previousID)
			a.RemoveChunk(previousID)
			block = previousID
		}
	}

	a.chunkInit(block, newSize)
	a.InsertChunk(block, newSize)
}
