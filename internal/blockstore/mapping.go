package blockstore

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Mapping is the file-mapping manager (C1). It owns the open file descriptor
// and the single live mmap of the whole archive, and hands out region-base
// slices for header, data and metadata. Every accessor that can grow or
// shrink a region invalidates all previously returned slices — callers must
// re-derive addresses via Header/Data/MD (or the block-indexing helpers on
// top of them) after any call documented to remap, exactly as spec §5
// requires: "no live raw pointer into the mapping is allowed to cross a
// call that can resize".
type Mapping struct {
	file *os.File
	name string

	buf []byte // the whole file, mmap'd

	headerSize uint64
	dataSize   uint64
	mdSize     uint64
}

// Open opens an existing archive file, or creates one (size 0) if create is
// true and the file does not exist. It does not map anything; call Remap
// with the desired region sizes once they are known (on create) or after
// reading them from the header (on open).
func Open(path string, create bool) (*Mapping, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, xerrors.Errorf("blockstore: open %s: %w", path, err)
	}
	return &Mapping{file: f, name: path}, nil
}

// Size returns the total mapped size in bytes.
func (m *Mapping) Size() uint64 { return m.headerSize + m.dataSize + m.mdSize }

// Name returns the path the Mapping was opened from.
func (m *Mapping) Name() string { return m.name }

// Remap unmaps the current mapping (if any), truncates the backing file to
// headerSize+dataSize+mdSize, and establishes a fresh mmap over the whole
// file. After Remap, Header()/Data()/MD() return freshly based slices:
// data starts right after header, md right after data. Remap itself never
// shifts bytes — the caller is responsible for moving the metadata region's
// content before growing data, and back after shrinking it.
func (m *Mapping) Remap(headerSize, dataSize, mdSize uint64) error {
	if m.buf != nil {
		if err := unix.Munmap(m.buf); err != nil {
			return xerrors.Errorf("blockstore: munmap %s: %w", m.name, err)
		}
		m.buf = nil
	}

	total := headerSize + dataSize + mdSize
	if err := m.file.Truncate(int64(total)); err != nil {
		return xerrors.Errorf("blockstore: truncate %s to %d: %w", m.name, total, err)
	}

	if total == 0 {
		m.headerSize, m.dataSize, m.mdSize = 0, 0, 0
		return nil
	}

	buf, err := unix.Mmap(int(m.file.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return xerrors.Errorf("blockstore: mmap %s (%d bytes): %w", m.name, total, err)
	}

	m.buf = buf
	m.headerSize = headerSize
	m.dataSize = dataSize
	m.mdSize = mdSize
	return nil
}

// MapExisting mmaps the file at whatever size it currently has on disk,
// without truncating it, treating the first headerSize bytes as the header
// region so Header() can be read before data_size/md_size are known. This
// is the bootstrap step Open uses to discover an existing archive's region
// sizes: unlike Remap, it never calls ftruncate, so it can't zero out an
// archive's DATA/METADATA regions the way a premature Remap(headerSize,
// 0, 0) would. Mirrors OpenExistingCIB's fstat+mmap-at-st_size
// (file_management.c:70).
func (m *Mapping) MapExisting(headerSize uint64) error {
	if m.buf != nil {
		if err := unix.Munmap(m.buf); err != nil {
			return xerrors.Errorf("blockstore: munmap %s: %w", m.name, err)
		}
		m.buf = nil
	}

	fi, err := m.file.Stat()
	if err != nil {
		return xerrors.Errorf("blockstore: stat %s: %w", m.name, err)
	}
	total := uint64(fi.Size())
	if total < headerSize {
		return xerrors.Errorf("blockstore: %s (%d bytes) is smaller than the fixed header size (%d bytes)", m.name, total, headerSize)
	}

	buf, err := unix.Mmap(int(m.file.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return xerrors.Errorf("blockstore: mmap %s (%d bytes): %w", m.name, total, err)
	}

	m.buf = buf
	m.headerSize = headerSize
	m.dataSize = total - headerSize
	m.mdSize = 0
	return nil
}

// Header returns the header region's bytes.
func (m *Mapping) Header() []byte { return m.buf[:m.headerSize] }

// Data returns the data region's bytes.
func (m *Mapping) Data() []byte { return m.buf[m.headerSize : m.headerSize+m.dataSize] }

// MD returns the metadata region's bytes.
func (m *Mapping) MD() []byte { return m.buf[m.headerSize+m.dataSize:] }

// HeaderSize, DataSize and MDSize report the current region sizes in bytes.
func (m *Mapping) HeaderSize() uint64 { return m.headerSize }
func (m *Mapping) DataSize() uint64   { return m.dataSize }
func (m *Mapping) MDSize() uint64     { return m.mdSize }

// DataBlock returns the slice for data block i. The slice is invalidated by
// any subsequent call that resizes the mapping.
func (m *Mapping) DataBlock(i uint64) []byte {
	off := i << dataBlockShift
	return m.Data()[off : off+DataBlockSize]
}

// MDBlock returns the slice for metadata block i.
func (m *Mapping) MDBlock(i uint64) []byte {
	off := i << mdBlockShift
	return m.MD()[off : off+MDBlockSize]
}

// DataBlocks returns the current capacity of the data region, in blocks.
func (m *Mapping) DataBlocks() uint64 { return m.dataSize >> dataBlockShift }

// MDBlocks returns the current capacity of the metadata region, in blocks.
func (m *Mapping) MDBlocks() uint64 { return m.mdSize >> mdBlockShift }

// GrowDataAndShiftMD grows the data region to newDataSize bytes, keeping
// header and metadata sizes unchanged, then slides the metadata region's
// bytes forward into their new, later offset. Remap runs first so the file
// is big enough to hold metadata at its new offset, matching Open Question
// resolution #2: growth always remaps before it shifts.
func (m *Mapping) GrowDataAndShiftMD(newDataSize uint64) error {
	oldDataSize, mdSize := m.dataSize, m.mdSize
	headerSize := m.headerSize
	if err := m.Remap(headerSize, newDataSize, mdSize); err != nil {
		return err
	}
	src := m.buf[headerSize+oldDataSize : headerSize+oldDataSize+mdSize]
	dst := m.MD()
	copy(dst, src)
	return nil
}

// ShrinkDataAndShiftMD slides the metadata region's bytes back into their
// new, smaller-offset position — while the old, larger mapping is still
// live — then shrinks the data region to newDataSize via Remap. The shift
// must happen before Remap here, the mirror image of GrowDataAndShiftMD,
// because shrinking the file would otherwise discard bytes that sit past
// the new, smaller boundary before they've been moved.
func (m *Mapping) ShrinkDataAndShiftMD(newDataSize uint64) error {
	headerSize, mdSize := m.headerSize, m.mdSize
	dst := m.buf[headerSize+newDataSize : headerSize+newDataSize+mdSize]
	copy(dst, m.MD())
	return m.Remap(headerSize, newDataSize, mdSize)
}

// Sync flushes the mapping to disk.
func (m *Mapping) Sync() error {
	if m.buf == nil {
		return nil
	}
	if err := unix.Msync(m.buf, unix.MS_SYNC); err != nil {
		return xerrors.Errorf("blockstore: msync %s: %w", m.name, err)
	}
	return nil
}

// Close unmaps and closes the backing file.
func (m *Mapping) Close() error {
	var err error
	if m.buf != nil {
		err = unix.Munmap(m.buf)
		m.buf = nil
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return xerrors.Errorf("blockstore: close %s: %w", m.name, err)
	}
	return nil
}
