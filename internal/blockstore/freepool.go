package blockstore

import "golang.org/x/xerrors"

// FreePool is the C4 node-block free pool: a 253-entry ring array of free
// node-block ids, spilling into a singly-linked overflow list once the
// array is full. Grounded on original_source/src/Metadata/freelist.c.
type FreePool struct {
	m  *Mapping
	h  *Header
	md *MD
}

// NewFreePool wraps m's metadata block 0.
func NewFreePool(m *Mapping, h *Header, md *MD) *FreePool { return &FreePool{m: m, h: h, md: md} }

func (p *FreePool) buf() []byte { return p.md.FreePoolBlock() }

func (p *FreePool) totalFree() uint32     { return getU32(p.buf(), fpOffTotalFree) }
func (p *FreePool) setTotalFree(v uint32) { putU32(p.buf(), fpOffTotalFree, v) }
func (p *FreePool) header() uint32        { return getU32(p.buf(), fpOffHeader) }
func (p *FreePool) setHeader(v uint32)    { putU32(p.buf(), fpOffHeader, v) }
func (p *FreePool) arrStart() int         { return int(getU8(p.buf(), fpOffArrStart)) }
func (p *FreePool) setArrStart(v int)     { putU8(p.buf(), fpOffArrStart, uint8(v)) }
func (p *FreePool) arrCount() int         { return int(getU8(p.buf(), fpOffArrCount)) }
func (p *FreePool) setArrCount(v int)     { putU8(p.buf(), fpOffArrCount, uint8(v)) }

func (p *FreePool) arr(i int) uint32     { return getU32(p.buf(), fpOffArray+i*4) }
func (p *FreePool) setArr(i int, v uint32) { putU32(p.buf(), fpOffArray+i*4, v) }

func freeNodeBuf(md *MD, block uint32) []byte { return md.NodeBlock(uint64(block)) }

func freeNodeInit(md *MD, block uint32) {
	buf := freeNodeBuf(md, block)
	for i := range buf {
		buf[i] = 0
	}
}

func freeNodeSetNext(md *MD, block, next uint32) {
	buf := freeNodeBuf(md, block)
	putU8(buf, fnOffNextFlag, 1)
	putU32(buf, fnOffNext, next)
}

func freeNodeGetNext(md *MD, block uint32) uint32 {
	return getU32(freeNodeBuf(md, block), fnOffNext)
}

func ringModFP(i int) int {
	for i < 0 {
		i += FreeNodeArrayCap
	}
	return i % FreeNodeArrayCap
}

// Init resets the pool and inserts node-block indices [0, freeNodes) as
// free. Grounded on FreeListInit.
func (p *FreePool) Init(freeNodes uint32) {
	buf := p.buf()
	for i := range buf {
		buf[i] = 0
	}
	p.h.SetFreeNodeBlocks(0)
	for i := uint32(0); i < freeNodes; i++ {
		p.InsertNodeBlock(i)
	}
}

// InsertNodeBlock returns the given node-block index to the pool. Grounded
// on FreeListInsertNodeBlock.
func (p *FreePool) InsertNodeBlock(block uint32) {
	count := p.arrCount()
	if count < FreeNodeArrayCap {
		index := ringModFP(count + p.arrStart())
		p.setArr(index, block)
		p.setArrCount(count + 1)
	} else {
		freeNodeInit(p.md, block)
		if p.totalFree() > FreeNodeArrayCap {
			freeNodeSetNext(p.md, block, p.header())
		}
		p.setHeader(block)
	}
	tf := p.totalFree() + 1
	p.setTotalFree(tf)
	p.h.SetFreeNodeBlocks(tf)
}

// RequestNodeBlock hands out a free node-block index, growing the metadata
// region by one block if the pool is empty. Grounded on
// FreeListRequestNodeBlock.
func (p *FreePool) RequestNodeBlock() (uint32, error) {
	count := p.arrCount()
	if count != 0 {
		tf := p.totalFree() - 1
		p.setTotalFree(tf)
		p.h.SetFreeNodeBlocks(tf)

		block := p.arr(p.arrStart())
		p.setArrStart(ringModFP(p.arrStart() + 1))
		p.setArrCount(count - 1)
		return block, nil
	}

	if p.totalFree() != 0 {
		tf := p.totalFree() - 1
		p.setTotalFree(tf)
		p.h.SetFreeNodeBlocks(tf)

		block := p.header()
		p.setHeader(freeNodeGetNext(p.md, block))
		return block, nil
	}

	newMDSize := p.h.MDSize() + MDBlockSize
	if err := p.m.Remap(p.m.HeaderSize(), p.h.DataSize(), newMDSize); err != nil {
		return 0, xerrors.Errorf("blockstore: grow metadata for node block: %w", err)
	}
	p.h.SetMDSize(newMDSize)

	newBlock := uint32(p.h.MDSize()>>mdBlockShift) - 1 - p.h.ListBlocks() - 1
	return newBlock, nil
}

// GrowListSize extends the entry table by `blocks` fresh list blocks,
// sliding the node-block region up to make room and initializing each new
// list block with InitListBlock (zeroed, with the ListBlockEmpty sentinel
// set). Grounded on FreeListIncreaseListSize.
func (p *FreePool) GrowListSize(blocks uint32) error {
	newMDSize := p.h.MDSize() + uint64(blocks)*MDBlockSize
	if err := p.m.Remap(p.m.HeaderSize(), p.h.DataSize(), newMDSize); err != nil {
		return xerrors.Errorf("blockstore: grow list region: %w", err)
	}
	p.h.SetMDSize(newMDSize)

	listBlocks := p.h.ListBlocks()
	mdSize := p.h.MDSize()
	src := p.md.ListBlock(uint64(listBlocks))
	n := mdSize - MDBlockSize*uint64(1+listBlocks+blocks)
	dst := p.md.ListBlock(uint64(listBlocks) + uint64(blocks))
	copy(dst[:n], src[:n])

	p.h.SetListBlocks(listBlocks + blocks)

	// Every new list block needs its empty-slot bitmap sentinel (bit 31)
	// set, not just zeroing — otherwise a block that fills all 31 real
	// slots never reads as full (its bitmap is 0x7FFFFFFF, not
	// 0xFFFFFFFF), so BitmapFindZeroBit32 keeps handing out the
	// non-existent 32nd slot. Matches CIBListBlockInit.
	for i := uint32(0); i < blocks; i++ {
		InitListBlock(p.md.ListBlock(uint64(listBlocks) + uint64(i)))
	}
	return nil
}

// GrowNodeBlocks extends the metadata region by nblocks fresh node blocks
// and returns them to the free pool. Grounded on FreeListIncreaseNodeBlocks.
func (p *FreePool) GrowNodeBlocks(nblocks uint32) error {
	newMDSize := p.h.MDSize() + uint64(nblocks)*MDBlockSize
	if err := p.m.Remap(p.m.HeaderSize(), p.h.DataSize(), newMDSize); err != nil {
		return xerrors.Errorf("blockstore: grow node-block region: %w", err)
	}
	p.h.SetMDSize(newMDSize)

	for i := uint32(1); i <= nblocks; i++ {
		block := uint32(p.h.MDSize()>>mdBlockShift) - p.h.ListBlocks() - 1 - i
		p.InsertNodeBlock(block)
	}
	return nil
}
