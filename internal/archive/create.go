package archive

import (
	"os"

	"github.com/ChrisKom04/CIBArchiever/internal/fsutil"
	"golang.org/x/xerrors"
)

// CreateArchive implements the `-c` CLI mode: it sizes a brand-new archive
// from a preflight traversal of paths (fsutil.CalculateSpace, the Go
// analogue of CalculateSpace/CalculateDirSpaceRec), creates it rooted at
// the current working directory, and inserts every path. Grounded on
// CIBCreate.
func CreateArchive(archivePath string, paths []string, compress bool) error {
	est, missing := fsutil.CalculateSpace(paths, nil)
	for _, p := range missing {
		logSkip("%s: does not exist", p)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return xerrors.Errorf("cib: create: %w", err)
	}

	// +1 extra data block, matching spec §4.8's "...+1 per payload + one extra".
	// Additional list blocks beyond the first are grown lazily by
	// Table.GetFreeSpot as entries are inserted (C5's nest-level tree).
	dataBlocks := est.DataBlocks + 1

	a, err := Create(archivePath, cwd, dataBlocks, est.NodeBlocks)
	if err != nil {
		return xerrors.Errorf("cib: create %s: %w", archivePath, err)
	}
	defer a.Close()
	a.bkl.Lock()
	defer a.bkl.Unlock()

	selfInfo, _ := os.Stat(archivePath)
	ctx := &insertCtx{arch: a, compress: compress, self: selfInfo}
	for _, p := range paths {
		if err := ctx.insertTop(p); err != nil {
			return err
		}
	}
	ctx.runCompressBarrier()

	return nil
}
