package archive

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChrisKom04/CIBArchiever/internal/gzipc"
	"golang.org/x/xerrors"
)

// ExtractArchive implements the `-x` CLI mode: with no paths it extracts
// the whole tree under root into the current directory; otherwise each
// given path is resolved and extracted individually, with parent
// directories created as needed. Grounded on CIBExtract.
func ExtractArchive(archivePath string, paths []string) error {
	a, err := Open(archivePath)
	if err != nil {
		return xerrors.Errorf("cib: extract %s: %w", archivePath, err)
	}
	defer a.Close()
	a.bkl.Lock()
	defer a.bkl.Unlock()

	var wg sync.WaitGroup

	if len(paths) == 0 {
		a.extractRec(".", 0, &wg)
		wg.Wait()
		return nil
	}

	for _, p := range paths {
		id, found := a.Paths.GetEntry(0, p)
		if !found {
			logSkip("%s: not found in %s", p, archivePath)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			logSkip("%s: %v", p, err)
			continue
		}
		a.extractRec(p, id, &wg)
	}
	wg.Wait()

	return nil
}

// extractRec recreates entryID at relPath on the host filesystem, recursing
// into subdirectories and forking a decompression child per zipped payload
// — joined by the shared WaitGroup once the whole call tree completes,
// matching CIBExtractRec's fork/wait accounting. Stored mode bits and
// modification times are restored on the recreated directory/file.
func (a *Archive) extractRec(relPath string, entryID uint64, wg *sync.WaitGroup) {
	entry := a.Table.Get(entryID)

	if entry.IsDir() {
		if err := os.MkdirAll(relPath, 0755); err != nil {
			logSkip("%s: %v", relPath, err)
			return
		}
		for _, de := range a.Nodes.GetDirEntries(uint32(entry.Pointer)) {
			a.extractRec(filepath.Join(relPath, de.Name), de.ID, wg)
		}
		// Restored after children, since creating them would otherwise
		// bump the directory's own mtime back to "now".
		restoreMetadata(relPath, entry)
		return
	}

	if entry.IsLink() {
		target := string(a.Allocator().Payload(entry.Pointer))
		os.Remove(relPath)
		if err := os.Symlink(target, relPath); err != nil {
			logSkip("%s: %v", relPath, err)
		}
		// Symlink permissions aren't meaningful on most platforms and
		// os.Chtimes follows the link rather than setting its own mtime,
		// so only mode/time-bearing entries (dir/file) are restored.
		return
	}

	if !entry.IsFile() {
		return
	}

	info := a.Allocator().Info(entry.Pointer)
	payload := a.Allocator().Payload(entry.Pointer)

	if !info.Zipped {
		writeExtracted(relPath, payload, entry)
		return
	}

	wg.Add(1)
	data := append([]byte(nil), payload...)
	go func() {
		defer wg.Done()
		out, err := gzipc.Decompress(data)
		if err != nil {
			logSkip("%s: %v", relPath, err)
			return
		}
		writeExtracted(relPath, out, entry)
	}()
}

func writeExtracted(path string, data []byte, entry Entry) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		logSkip("%s: %v", path, err)
		return
	}
	restoreMetadata(path, entry)
}

// restoreMetadata applies entry's stored permission bits and modification
// time to the already-created path, the Go analogue of CIBExtractRec's
// chmod/utime calls.
func restoreMetadata(path string, entry Entry) {
	if err := os.Chmod(path, os.FileMode(entry.Mode&0777)); err != nil {
		logSkip("%s: %v", path, err)
	}
	mtime := time.Unix(int64(entry.Modified), 0)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		logSkip("%s: %v", path, err)
	}
}
