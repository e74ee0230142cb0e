// Package fsutil captures local filesystem state — lstat info, directory
// membership, symlink targets — for the archive's create/append operations
// (C9), the Go analogue of file_management.c's lstat/opendir/readdir usage.
package fsutil

import (
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/xerrors"
)

// Info is a captured lstat result plus the OS-raw mode bits the archive
// stores verbatim (st_mode, not os.FileMode).
type Info struct {
	Path     string // path as given/walked, not yet cleaned of the base dir
	Name     string
	RawMode  uint32
	UID, GID uint32
	Size     int64
	ModTime  int64
	IsDir    bool
	IsLink   bool
	LinkTo   string // populated only when IsLink
}

// Lstat captures path's metadata without following a trailing symlink,
// matching file_management.c's use of lstat throughout.
func Lstat(path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Info{}, err
	}
	return infoFromFileInfo(path, fi)
}

func infoFromFileInfo(path string, fi os.FileInfo) (Info, error) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Info{}, xerrors.Errorf("fsutil: unsupported platform stat_t for %s", path)
	}

	info := Info{
		Path:    path,
		Name:    fi.Name(),
		RawMode: st.Mode,
		UID:     st.Uid,
		GID:     st.Gid,
		Size:    fi.Size(),
		ModTime: fi.ModTime().Unix(),
		IsDir:   fi.IsDir(),
		IsLink:  fi.Mode()&os.ModeSymlink != 0,
	}

	if info.IsLink {
		target, err := os.Readlink(path)
		if err != nil {
			return Info{}, err
		}
		info.LinkTo = target
	}

	return info, nil
}

// SameFile reports whether a and b name the same inode — used to skip the
// archive file itself when it lives inside a directory being archived,
// matching CalculateDirSpaceRec's cib_info.st_ino comparison.
func SameFile(a, b os.FileInfo) bool { return os.SameFile(a, b) }

// ReadDir lists dir's immediate children, skipping "." and "..", as
// opendir/readdir does.
func ReadDir(dir string) ([]os.DirEntry, error) {
	return os.ReadDir(dir)
}

// fileExtraData mirrors blockstore.FileExtraData (data.c's FILE_EXTRA_DATA):
// the fixed per-chunk bookkeeping overhead InsertBytes budgets on top of a
// payload's own byte count. Duplicated here as a plain constant rather than
// importing internal/blockstore, since fsutil's preflight sizing only needs
// the number, not the allocator itself.
const fileExtraData = 32

// NeededDataBlocks returns the data blocks one payload of size bytes takes
// once stored: ceil((size+32)/1024) plus the one trailing block that
// Allocator.InsertBytes always adds, so a zero-length file claims 2 blocks.
func NeededDataBlocks(size int64) uint64 {
	if size <= 0 {
		return 2
	}
	return uint64(size+fileExtraData+1023)/1024 + 1
}

// SpaceEstimate is the preflight sizing result for a set of top-level
// paths, the Go analogue of CalculateSpace's out-parameters.
type SpaceEstimate struct {
	Entries    uint64
	NodeBlocks uint32
	DataBlocks uint64
}

// CalculateSpace walks every path in paths (skipping ones that don't lstat,
// the same way CalculateSpace does) and totals the entries, node blocks and
// data blocks needed to archive them, excluding selfInfo (the archive file
// itself, when it resides under one of the paths).
func CalculateSpace(paths []string, selfInfo os.FileInfo) (SpaceEstimate, []string) {
	var est SpaceEstimate
	var missing []string
	var underDirEntries uint64

	for _, p := range paths {
		info, err := Lstat(p)
		if err != nil {
			missing = append(missing, p)
			continue
		}

		if info.IsDir {
			sub, subEntries := calculateDirSpaceRec(p, info, selfInfo)
			est.Entries += 1 + subEntries
			est.NodeBlocks += sub.NodeBlocks
			est.DataBlocks += sub.DataBlocks
		} else {
			est.Entries++
			est.DataBlocks += NeededDataBlocks(info.Size)
		}
		underDirEntries++
	}

	est.NodeBlocks += nodeBlocksFor(underDirEntries)
	return est, missing
}

func nodeBlocksFor(underDir uint64) uint32 {
	whole := underDir / 3
	if underDir%3 > 0 {
		whole++
	}
	if whole == 0 {
		whole = 1
	}
	return uint32(whole)
}

func calculateDirSpaceRec(path string, info Info, selfInfo os.FileInfo) (SpaceEstimate, uint64) {
	var est SpaceEstimate
	var entries uint64
	var underDir uint64

	des, err := os.ReadDir(path)
	if err != nil {
		return est, 0
	}

	for _, de := range des {
		childPath := filepath.Join(path, de.Name())
		childInfo, err := Lstat(childPath)
		if err != nil {
			continue
		}
		if selfInfo != nil {
			if raw, err := os.Lstat(childPath); err == nil && os.SameFile(raw, selfInfo) {
				continue
			}
		}

		if childInfo.IsDir {
			sub, subEntries := calculateDirSpaceRec(childPath, childInfo, selfInfo)
			entries += 1 + subEntries
			est.NodeBlocks += sub.NodeBlocks
			est.DataBlocks += sub.DataBlocks
		} else if childInfo.IsLink || !childInfo.IsDir {
			entries++
			est.DataBlocks += NeededDataBlocks(childInfo.Size)
		}
		underDir++
	}

	est.NodeBlocks += nodeBlocksFor(underDir)
	return est, entries
}
