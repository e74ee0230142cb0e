package archive

import (
	"sync"

	"github.com/ChrisKom04/CIBArchiever/internal/blockstore"
	"golang.org/x/xerrors"
)

// Archive is the open handle to a .cib file: the memory-mapped blockstore
// plus the entry table, node chain and path resolver built on top of it.
// Like dbm.DB's bkl, a single mutex serializes every operation — the spec's
// concurrency model (§5) is "one operation at a time", not fine-grained
// locking.
type Archive struct {
	bkl sync.Mutex

	mapping *blockstore.Mapping
	header  *blockstore.Header
	md      *blockstore.MD
	pool    *blockstore.FreePool
	data    *blockstore.Allocator

	Table *Table
	Nodes *NodeChain
	Paths *Resolver
}

func wire(m *blockstore.Mapping) *Archive {
	h := blockstore.NewHeader(m)
	md := blockstore.NewMD(m, h)
	pool := blockstore.NewFreePool(m, h, md)
	data := blockstore.NewAllocator(m, h)
	table := NewTable(m, h, md, pool)
	nodes := NewNodeChain(md, pool)
	return &Archive{
		mapping: m, header: h, md: md, pool: pool, data: data,
		Table: table, Nodes: nodes, Paths: NewResolver(table, nodes, data),
	}
}

// Create creates a brand-new archive at path, with baseDir recorded in the
// header (spec §6 Environment) and space pre-reserved for dataBlocks data
// blocks and nodeBlocks node blocks — a preflight sizing pass the caller
// computes from CalculateSpace over the paths being inserted. Grounded on
// CIBCreate plus file_management.c's CalculateSpace.
func Create(path, baseDir string, dataBlocks uint64, nodeBlocks uint32) (*Archive, error) {
	m, err := blockstore.Open(path, true)
	if err != nil {
		return nil, err
	}

	headerSize := blockstore.NeededSpace(baseDir)
	if dataBlocks < 1 {
		dataBlocks = 1
	}
	// +1 for the free-node pool block, +1 for the entry table's first
	// list block (CIB_LIST_BLOCK), plus the requested node blocks.
	mdSize := uint64(2+nodeBlocks) * blockstore.MDBlockSize

	if err := m.Remap(headerSize, dataBlocks<<10, mdSize); err != nil {
		m.Close()
		return nil, err
	}

	a := wire(m)
	a.header.SetBaseDir(baseDir)
	a.header.SetMDSize(mdSize)
	a.header.SetListBlocks(1)
	a.data.Init(dataBlocks)
	a.pool.Init(nodeBlocks)

	root := Entry{Mode: sIFDIR | 0755}
	if err := a.Table.Init(a.Nodes, root); err != nil {
		m.Close()
		return nil, err
	}
	return a, nil
}

// Open opens an existing archive, re-establishing the mapping at the sizes
// recorded in its header. Grounded on OpenExistingCIB.
func Open(path string) (*Archive, error) {
	m, err := blockstore.Open(path, false)
	if err != nil {
		return nil, err
	}

	// Bootstrap: map the file at its current on-disk size (no truncation)
	// to read the header's own data_size/md_size fields, then Remap
	// precisely. Using Remap directly here would truncate the file down to
	// HeaderFixedSize first, discarding DATA and METADATA before they could
	// be read.
	if err := m.MapExisting(blockstore.HeaderFixedSize); err != nil {
		m.Close()
		return nil, err
	}
	h := blockstore.NewHeader(m)
	dataSize, mdSize := h.DataSize(), h.MDSize()

	if err := m.Remap(blockstore.HeaderFixedSize, dataSize, mdSize); err != nil {
		m.Close()
		return nil, err
	}

	return wire(m), nil
}

// Close flushes and unmaps the archive.
func (a *Archive) Close() error {
	a.bkl.Lock()
	defer a.bkl.Unlock()
	if err := a.mapping.Sync(); err != nil {
		return err
	}
	return a.mapping.Close()
}

// BaseDir returns the archive's recorded base directory.
func (a *Archive) BaseDir() string { return a.header.BaseDir() }

// Allocator exposes the data-chunk allocator to the C8 operation files.
func (a *Archive) Allocator() *blockstore.Allocator { return a.data }

// Header exposes the header accessor to the C8 operation files (listEntries,
// nest level, etc. for print/query).
func (a *Archive) Header() *blockstore.Header { return a.header }

// errNotDir is returned when an operation expects a path to resolve to a
// directory entry and it doesn't.
var errNotDir = xerrors.New("cib: entry is not a directory")
