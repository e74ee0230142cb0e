package archive

import (
	"os"

	"github.com/ChrisKom04/CIBArchiever/internal/fsutil"
	"golang.org/x/xerrors"
)

// AppendArchive implements the `-a` CLI mode: open an existing archive,
// grow its DATA region by a preflight estimate (shifting METADATA forward
// in the process — blockstore.Mapping.GrowDataAndShiftMD), register the new
// space with the data allocator's free index, then insert/update each path
// relative to the archive's stored base_dir. Grounded on CIBAppend.
func AppendArchive(archivePath string, paths []string, compress bool) error {
	a, err := Open(archivePath)
	if err != nil {
		return xerrors.Errorf("cib: append %s: %w", archivePath, err)
	}
	defer a.Close()
	a.bkl.Lock()
	defer a.bkl.Unlock()

	est, missing := fsutil.CalculateSpace(paths, nil)
	for _, p := range missing {
		logSkip("%s: does not exist", p)
	}

	if est.DataBlocks > 0 {
		if err := a.Allocator().Grow(est.DataBlocks + 1); err != nil {
			return xerrors.Errorf("cib: append %s: %w", archivePath, err)
		}
	}
	if est.NodeBlocks > 0 {
		if err := a.pool.GrowNodeBlocks(est.NodeBlocks); err != nil {
			return xerrors.Errorf("cib: append %s: %w", archivePath, err)
		}
	}

	selfInfo, _ := os.Stat(archivePath)
	ctx := &insertCtx{arch: a, compress: compress, self: selfInfo}
	for _, p := range paths {
		if err := ctx.insertUnderRoot(p); err != nil {
			return err
		}
	}
	ctx.runCompressBarrier()

	return nil
}

// insertUnderRoot resolves/updates a single append argument relative to
// base_dir, inserting it fresh if it doesn't already exist, or overwriting
// its metadata (and, for files, its payload) in place if it does. Grounded
// on CIBAppend's per-path update-or-insert loop (CIBListUpdateEntry).
func (c *insertCtx) insertUnderRoot(hostPath string) error {
	info, err := fsutil.Lstat(hostPath)
	if err != nil {
		logSkip("%s: does not exist", hostPath)
		return nil
	}

	relPath, err := relativeToBase(c.arch.BaseDir(), hostPath)
	if err != nil {
		logSkip("%s: %v", hostPath, err)
		return nil
	}

	parentID, found := c.arch.Paths.GetEntry(0, parentOf(relPath))
	if !found || !c.arch.Table.Get(parentID).IsDir() {
		logSkip("%s: parent directory not present in archive", hostPath)
		return nil
	}

	return c.insertPath(info, parentID, baseOf(relPath))
}
