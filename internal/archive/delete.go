package archive

import (
	"golang.org/x/xerrors"
)

// DeleteArchive implements the `-d` CLI mode: resolve each path under root,
// refuse to delete the root itself, delete the rest via the C7 resolver,
// and shrink the DATA region's trailing free chunk(s) afterward. Grounded
// on CIBDelete.
func DeleteArchive(archivePath string, paths []string) error {
	a, err := Open(archivePath)
	if err != nil {
		return xerrors.Errorf("cib: delete %s: %w", archivePath, err)
	}
	defer a.Close()
	a.bkl.Lock()
	defer a.bkl.Unlock()

	deleted := false
	for _, p := range paths {
		if p == "." || p == "/" {
			logSkip("cannot delete the archive root")
			continue
		}

		id, found := a.Paths.GetEntry(0, p)
		if !found {
			logSkip("%s: not found in %s", p, archivePath)
			continue
		}

		parentID, found := a.Paths.GetEntry(0, parentOf(p))
		if !found {
			logSkip("%s: parent directory not found", p)
			continue
		}

		a.Paths.DeleteEntry(id, parentID)
		deleted = true
	}

	if deleted {
		// At least once, per spec §4.8; RemoveLastChunk returns an error
		// once there is nothing left to trim, which just ends the loop.
		for a.Allocator().RemoveLastChunk() == nil {
		}
	}

	return nil
}
