package archive

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/ChrisKom04/CIBArchiever/internal/blockstore"
	"golang.org/x/xerrors"
)

// Resolver is the C7 path resolver/updater: walks `/`-separated relative
// paths over the entry table and node chains, handling "." and ".." via
// each node block's self/parent fields. Grounded on
// original_source/src/Metadata/cib_struct.c's
// CIBListGetEntry/CIBListUpdateEntry/CIBListDeleteEntry family.
type Resolver struct {
	table *Table
	nodes *NodeChain
	data  *blockstore.Allocator
}

// NewResolver builds a Resolver over table, nodes and the data allocator
// (needed by DeleteEntry to free a deleted file/symlink's data chunk).
func NewResolver(table *Table, nodes *NodeChain, data *blockstore.Allocator) *Resolver {
	return &Resolver{table: table, nodes: nodes, data: data}
}

// GetEntry resolves relPath relative to the directory named by currentID.
// found reports whether the full path exists; a path that tries to descend
// through a non-directory component returns found=false. Grounded on
// CIBListGetEntry.
func (r *Resolver) GetEntry(currentID uint64, relPath string) (id uint64, found bool) {
	if relPath == "/" || relPath == "." {
		return currentID, true
	}

	parts := strings.Split(relPath, "/")
	current := r.table.Get(currentID)

	for _, part := range parts {
		if part == "" {
			continue
		}
		if !current.IsDir() {
			// A non-directory component that isn't the last one means the
			// path can't possibly resolve.
			return 0, false
		}

		next, ok := r.nodes.GetEntry(uint32(current.Pointer), part)
		if !ok {
			return 0, false
		}
		currentID = next
		current = r.table.Get(currentID)
	}

	return currentID, true
}

// UpdateEntry inserts relPath's leaf component (relative to currentID) if
// it doesn't exist yet, or overwrites its metadata in place if it does.
// inserted reports whether the resolution could proceed at all (false,
// always with a non-nil err, means the parent directory doesn't exist or
// isn't a directory, or the existing entry is of a different type — a fatal
// error for this path, not "already exists"). Grounded on
// CIBListUpdateEntry.
func (r *Resolver) UpdateEntry(entry Entry, relPath string, currentID uint64) (id uint64, inserted bool, err error) {
	dir := path.Dir(relPath)
	base := path.Base(relPath)

	parentID, found := r.GetEntry(currentID, dir)
	if !found {
		return 0, false, xerrors.Errorf("path %s under entry %d does not exist", relPath, currentID)
	}
	if !r.table.Get(parentID).IsDir() {
		return 0, false, xerrors.Errorf("%s: %w", relPath, errNotDir)
	}

	newID, exists := r.GetEntry(parentID, base)
	if !exists {
		newID, err = r.table.GetFreeSpot()
		if err != nil {
			return 0, false, err
		}
		r.table.Set(newID, entry)

		if err := r.table.InsertEntryUnderDir(r.nodes, newID, parentID, base); err != nil {
			return 0, false, err
		}
		return newID, true, nil
	}

	if typeClass(r.table.Get(newID).Mode) != typeClass(entry.Mode) {
		return 0, false, xerrors.Errorf("cannot update a directory with a file or vice versa: %s", relPath)
	}

	r.table.Update(newID, entry)
	return newID, true, nil
}

func typeClass(mode uint32) uint32 { return mode & sIFMT }

// DeleteEntry removes entryID (found under parentID) from the archive. If
// entryID names a directory, its entire subtree is deleted first; if it
// names a file or symlink, its data chunk is returned to the allocator's
// free index. Grounded on CIBListDeleteEntry/CIBListDeleteDirEntry plus
// CIBDeleteRec's DataDeleteFile call.
func (r *Resolver) DeleteEntry(entryID, parentID uint64) {
	parent := r.table.Get(parentID)
	entry := r.table.Get(entryID)

	if entry.IsDir() {
		r.deleteDirContents(entryID)
	} else if (entry.IsFile() || entry.IsLink()) && entry.Pointer != 0 {
		// Pointer 0 means no chunk was ever assigned (e.g. a queued
		// compress job that failed before InsertBytes/SetPointer ran) —
		// data block 0 is always the free index, never a real chunk.
		r.data.Delete(entry.Pointer)
	}

	r.nodes.RemoveEntryID(uint32(parent.Pointer), entryID)
	r.table.FreeEntry(entryID)
}

func (r *Resolver) deleteDirContents(dirID uint64) {
	dir := r.table.Get(dirID)
	for _, de := range r.nodes.GetDirEntries(uint32(dir.Pointer)) {
		r.DeleteEntry(de.ID, dirID)
	}
}

// relativeToBase makes hostPath relative to base (the archive's stored
// base_dir), as a `/`-separated archive path. Spec §4.9/§7 treats a host
// path outside base_dir as an input error.
func relativeToBase(base, hostPath string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(hostPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", xerrors.Errorf("%s is outside the archive's base directory", hostPath)
	}
	return filepath.ToSlash(rel), nil
}

func parentOf(archPath string) string {
	d := path.Dir(archPath)
	if d == "." {
		return "/"
	}
	return d
}

func baseOf(archPath string) string { return path.Base(archPath) }
