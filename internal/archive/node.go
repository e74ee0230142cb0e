package archive

import (
	"github.com/ChrisKom04/CIBArchiever/internal/blockstore"
)

const namesPerNodeBlock = blockstore.NodeNamesPerBlock

// NodeChain is the C6 directory node chain: each directory's membership is
// a singly/doubly-linked chain of 3-slot node blocks. Grounded on
// original_source/src/Metadata/cib_struct.c's CIBNode* functions.
type NodeChain struct {
	md *blockstore.MD
	fp *blockstore.FreePool
}

// NewNodeChain wraps md's node-block region.
func NewNodeChain(md *blockstore.MD, fp *blockstore.FreePool) *NodeChain {
	return &NodeChain{md: md, fp: fp}
}

func (n *NodeChain) buf(block uint32) []byte { return n.md.NodeBlock(uint64(block)) }

// Init initializes block as a fresh node block for a directory whose own
// entry id is self and whose parent directory's entry id is parent.
func (n *NodeChain) Init(block uint32, parent, self uint64) {
	blockstore.InitNodeBlock(n.buf(block), parent, self)
}

func (n *NodeChain) setPrevious(block, previous uint32) {
	buf := n.buf(block)
	blockstore.SetNodePrevious(buf, previous)
	blockstore.SetNodePrevFlag(buf, true)
}

func (n *NodeChain) setNext(block, next uint32) {
	buf := n.buf(block)
	blockstore.SetNodeNext(buf, next)
	blockstore.SetNodeNextFlag(buf, true)
}

// InsertEntry inserts <entryID, name> into the node chain starting at
// block, extending the chain with a freshly requested node block if every
// existing block is full. Grounded on CIBNodeInsertEntry.
func (n *NodeChain) InsertEntry(block uint32, entryID uint64, name string) error {
	for {
		buf := n.buf(block)
		count := blockstore.NodeCount(buf)
		nextFlag := blockstore.NodeNextFlag(buf)

		if count == uint32(namesPerNodeBlock) && !nextFlag {
			parent, self := blockstore.NodeParent(buf), blockstore.NodeSelf(buf)
			newBlock, err := n.fp.RequestNodeBlock()
			if err != nil {
				return err
			}
			n.Init(newBlock, parent, self)
			n.setPrevious(newBlock, block)
			n.setNext(block, newBlock)
			block = newBlock
			continue
		}
		if nextFlag {
			block = blockstore.NodeNext(buf)
			continue
		}

		for i := 0; i < namesPerNodeBlock; i++ {
			if blockstore.NodeEntry(buf, i) == 0 {
				blockstore.SetNodeCount(buf, count+1)
				blockstore.SetNodeEntry(buf, i, entryID)
				blockstore.SetNodeName(buf, i, name)
				return nil
			}
		}
		return nil
	}
}

// GetEntry searches the node chain starting at block for an entry named
// name, also handling "." and "..". Grounded on CIBNodeGetEntry.
func (n *NodeChain) GetEntry(block uint32, name string) (id uint64, found bool) {
	first := n.buf(block)
	switch name {
	case ".":
		return blockstore.NodeSelf(first), true
	case "..":
		return blockstore.NodeParent(first), true
	}

	for {
		buf := n.buf(block)
		if blockstore.NodeCount(buf) > 0 {
			for i := 0; i < namesPerNodeBlock; i++ {
				if blockstore.NodeEntry(buf, i) != 0 && blockstore.NodeName(buf, i) == name {
					return blockstore.NodeEntry(buf, i), true
				}
			}
		}
		if !blockstore.NodeNextFlag(buf) {
			return 0, false
		}
		block = blockstore.NodeNext(buf)
	}
}

// DeleteNodeBlock removes block from its chain and returns it to the free
// pool, unless it's the chain's only block. Grounded on
// CIBNodeDeleteNodeBlock.
func (n *NodeChain) DeleteNodeBlock(block uint32) {
	buf := n.buf(block)

	if blockstore.NodePrevFlag(buf) {
		prevBlock := blockstore.NodePrevious(buf)
		prevBuf := n.buf(prevBlock)
		blockstore.SetNodeNext(prevBuf, blockstore.NodeNext(buf))
		blockstore.SetNodeNextFlag(prevBuf, blockstore.NodeNextFlag(buf))
		if blockstore.NodeNextFlag(buf) {
			blockstore.SetNodePrevious(n.buf(blockstore.NodeNext(buf)), prevBlock)
		}
		n.fp.InsertNodeBlock(block)
		return
	}

	if blockstore.NodeNextFlag(buf) {
		nextBlock := blockstore.NodeNext(buf)
		nextBuf := n.buf(nextBlock)
		blockstore.SetNodePrevFlag(nextBuf, false)

		copy(buf, nextBuf)

		buf = n.buf(block)
		if blockstore.NodeNextFlag(buf) {
			nextNextBuf := n.buf(blockstore.NodeNext(buf))
			blockstore.SetNodePrevious(nextNextBuf, block)
		}

		n.fp.InsertNodeBlock(nextBlock)
	}
}

// RemoveEntryID deletes entryID from the node chain starting at block.
// Grounded on CIBNodeRemoveEntryId.
func (n *NodeChain) RemoveEntryID(block uint32, entryID uint64) {
	for {
		buf := n.buf(block)
		removed := false
		for i := 0; i < namesPerNodeBlock; i++ {
			if blockstore.NodeEntry(buf, i) == entryID {
				blockstore.SetNodeEntry(buf, i, 0)
				blockstore.SetNodeName(buf, i, "")
				count := blockstore.NodeCount(buf) - 1
				blockstore.SetNodeCount(buf, count)

				if count == 0 && (blockstore.NodePrevFlag(buf) || blockstore.NodeNextFlag(buf)) {
					n.DeleteNodeBlock(block)
				}
				removed = true
				break
			}
		}
		if removed {
			return
		}
		if !blockstore.NodeNextFlag(buf) {
			return
		}
		block = blockstore.NodeNext(buf)
	}
}

// DirEntry is a <entryID, name> pair, the Go analogue of INPair.
type DirEntry struct {
	ID   uint64
	Name string
}

// GetDirEntries collects every <entryID, name> pair in the node chain
// starting at block. Grounded on CIBNodeGetDirEntries.
func (n *NodeChain) GetDirEntries(block uint32) []DirEntry {
	var out []DirEntry
	for {
		buf := n.buf(block)
		for i := 0; i < namesPerNodeBlock; i++ {
			if blockstore.NodeEntry(buf, i) != 0 {
				out = append(out, DirEntry{ID: blockstore.NodeEntry(buf, i), Name: blockstore.NodeName(buf, i)})
			}
		}
		if !blockstore.NodeNextFlag(buf) {
			return out
		}
		block = blockstore.NodeNext(buf)
	}
}
