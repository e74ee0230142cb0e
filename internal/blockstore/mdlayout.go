package blockstore

// MD region layout, grounded on original_source/src/Metadata/metadata.c's
// GetFreeListBlockAddress/GetListBlockAddress/GetNodeBlockAddress: block 0
// is always the node-block free pool; blocks [1, 1+ListBlocks) are the
// entry-table list blocks; everything after that is directory node blocks.
type MD struct {
	m *Mapping
	h *Header
}

// NewMD wraps m's metadata region, using h to locate the list/node-block
// boundary.
func NewMD(m *Mapping, h *Header) *MD { return &MD{m: m, h: h} }

// FreePoolBlock returns metadata block 0, the node-block free pool.
func (d *MD) FreePoolBlock() []byte { return d.m.MDBlock(FreeNodePoolBlock) }

// ListBlock returns the i'th entry-table list block.
func (d *MD) ListBlock(i uint64) []byte { return d.m.MDBlock(1 + i) }

// NodeBlock returns the j'th directory node block, addressed relative to
// the end of the list-block region.
func (d *MD) NodeBlock(j uint64) []byte { return d.m.MDBlock(1 + uint64(d.h.ListBlocks()) + j) }

// NodeBlockIndex is the inverse of NodeBlock: given an absolute metadata
// block id, returns the node-block-relative index.
func (d *MD) NodeBlockIndex(mdBlock uint64) uint64 {
	return mdBlock - 1 - uint64(d.h.ListBlocks())
}

// TotalNodeBlocks returns how many node-block slots currently exist past
// the list-block region, used/free combined.
func (d *MD) TotalNodeBlocks() uint64 {
	return d.m.MDBlocks() - 1 - uint64(d.h.ListBlocks())
}
