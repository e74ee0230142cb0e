package blockstore

// Node-block field accessors (cib_node), operating directly on the bytes
// returned by MD.NodeBlock. Centralizing these here, rather than in
// archive, keeps every on-disk byte offset inside blockstore.

func NodeName(buf []byte, i int) string {
	off := nbOffName + i*nodeNameCap
	b := buf[off : off+nodeNameCap]
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func SetNodeName(buf []byte, i int, s string) {
	off := nbOffName + i*nodeNameCap
	b := buf[off : off+nodeNameCap]
	for j := range b {
		b[j] = 0
	}
	copy(b, s)
}

func NodeEntry(buf []byte, i int) uint64     { return getU64(buf, nbOffEntry+i*8) }
func SetNodeEntry(buf []byte, i int, v uint64) { putU64(buf, nbOffEntry+i*8, v) }

func NodeCount(buf []byte) uint32     { return getU32(buf, nbOffCount) }
func SetNodeCount(buf []byte, v uint32) { putU32(buf, nbOffCount, v) }

func NodeSelf(buf []byte) uint64   { return uint64(getU32(buf, nbOffSelf)) }
func SetNodeSelf(buf []byte, v uint64) { putU32(buf, nbOffSelf, uint32(v)) }

func NodeParent(buf []byte) uint64   { return uint64(getU32(buf, nbOffParent)) }
func SetNodeParent(buf []byte, v uint64) { putU32(buf, nbOffParent, uint32(v)) }

func NodeNext(buf []byte) uint32     { return getU32(buf, nbOffNext) }
func SetNodeNext(buf []byte, v uint32) { putU32(buf, nbOffNext, v) }

func NodePrevious(buf []byte) uint32     { return getU32(buf, nbOffPrevious) }
func SetNodePrevious(buf []byte, v uint32) { putU32(buf, nbOffPrevious, v) }

func NodeNextFlag(buf []byte) bool { return getU8(buf, nbOffNextFlag) == 1 }
func SetNodeNextFlag(buf []byte, v bool) {
	putU8(buf, nbOffNextFlag, boolU8(v))
}

func NodePrevFlag(buf []byte) bool { return getU8(buf, nbOffPrevFlag) == 1 }
func SetNodePrevFlag(buf []byte, v bool) {
	putU8(buf, nbOffPrevFlag, boolU8(v))
}

func boolU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// InitNodeBlock zeroes buf and sets its parent/self fields, matching
// CIBNodeInit.
func InitNodeBlock(buf []byte, parent, self uint64) {
	for i := range buf {
		buf[i] = 0
	}
	SetNodeParent(buf, parent)
	SetNodeSelf(buf, self)
}
