package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ChrisKom04/CIBArchiever/internal/fsutil"
	"github.com/ChrisKom04/CIBArchiever/internal/gzipc"
)

// compressJob is a pending background compression: read raw bytes from a
// host file and compress them via a forked gzip child. One job is queued
// per regular file when compression is requested, matching the spec's
// "one child per file, joined at a barrier before the operation completes"
// create/append concurrency model (§5).
type compressJob struct {
	entryID  uint64
	parentID uint64
	name     string
	path     string

	// prevPointer/hadPrevChunk capture an already-present entry's old data
	// chunk (append's update-in-place case) so the barrier can free it once
	// compression has actually succeeded, rather than leaking it.
	prevPointer  uint64
	hadPrevChunk bool
}

type compressResult struct {
	job     compressJob
	payload []byte
	err     error
}

// insertCtx threads the state shared across one create/append call's
// recursive tree-insertion pass: the target archive, whether compression
// was requested, the queue of deferred compress jobs, and the inode of the
// archive's own backing file (to exclude it from its own contents).
type insertCtx struct {
	arch     *Archive
	compress bool
	self     os.FileInfo
	jobs     []compressJob

	// seen dedups top-level CLI arguments that name the same absolute host
	// path twice, the Go analogue of CIBRecInsertEntry's hash-table
	// resolution memo. An argument nested under another named argument is
	// not detected: it is inserted again at root under its base name.
	seen map[string]bool
}

func logSkip(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "cib: "+format+"\n", args...)
}

// insertTop inserts hostPath as a top-level member of the archive, named by
// its own base name and parented at root (entry id 0). Grounded on
// CalculateSpace's/CIBCreate's per-argument insertion loop.
func (c *insertCtx) insertTop(hostPath string) error {
	abs, err := filepath.Abs(hostPath)
	if err == nil {
		if c.seen == nil {
			c.seen = make(map[string]bool)
		}
		if c.seen[abs] {
			return nil
		}
		c.seen[abs] = true
	}

	info, err := fsutil.Lstat(hostPath)
	if err != nil {
		logSkip("%s: does not exist", hostPath)
		return nil
	}
	return c.insertPath(info, 0, filepath.Base(filepath.Clean(hostPath)))
}

// insertPath inserts hostPath's already-captured info under parentID as
// name, recursing into directories and deferring regular-file compression
// to the post-traversal barrier. It routes through Resolver.UpdateEntry so
// re-inserting an already-present path (append's common case) updates the
// existing entry in place instead of duplicating it — the caller's old data
// chunk, if any, is freed only once its replacement has actually landed.
// Grounded on CIBInsertDirectory / CIBRecInsertEntry / CIBListUpdateEntry.
func (c *insertCtx) insertPath(info fsutil.Info, parentID uint64, name string) error {
	entry := Entry{
		UID: info.UID, GID: info.GID, Mode: info.RawMode,
		Created: uint32(info.ModTime), Modified: uint32(info.ModTime), Accessed: uint32(info.ModTime),
	}

	var prevPointer uint64
	var hadPrevChunk bool
	if prevID, existed := c.arch.Paths.GetEntry(parentID, name); existed {
		if prev := c.arch.Table.Get(prevID); (prev.IsFile() || prev.IsLink()) && prev.Pointer != 0 {
			prevPointer, hadPrevChunk = prev.Pointer, true
		}
	}

	id, _, err := c.arch.Paths.UpdateEntry(entry, name, parentID)
	if err != nil {
		return err
	}

	switch {
	case entry.IsDir():
		return c.insertChildren(info.Path, id)
	case entry.IsLink():
		block, err := c.arch.Allocator().InsertBytes([]byte(info.LinkTo), false)
		if err != nil {
			return err
		}
		if hadPrevChunk {
			c.arch.Allocator().Delete(prevPointer)
		}
		c.arch.Table.SetPointer(id, block)
		return nil
	case entry.IsFile():
		if c.compress {
			c.jobs = append(c.jobs, compressJob{
				entryID: id, parentID: parentID, name: name, path: info.Path,
				prevPointer: prevPointer, hadPrevChunk: hadPrevChunk,
			})
			return nil
		}
		data, err := os.ReadFile(info.Path)
		if err != nil {
			logSkip("%s: %v", info.Path, err)
			return nil
		}
		block, err := c.arch.Allocator().InsertBytes(data, false)
		if err != nil {
			return err
		}
		if hadPrevChunk {
			c.arch.Allocator().Delete(prevPointer)
		}
		c.arch.Table.SetPointer(id, block)
		return nil
	default:
		logSkip("%s: skipping non-regular, non-directory, non-symlink file", info.Path)
		c.arch.Paths.DeleteEntry(id, parentID)
		return nil
	}
}

func (c *insertCtx) insertChildren(dir string, dirEntryID uint64) error {
	des, err := fsutil.ReadDir(dir)
	if err != nil {
		logSkip("%s: %v", dir, err)
		return nil
	}

	for _, de := range des {
		childPath := filepath.Join(dir, de.Name())
		childInfo, err := fsutil.Lstat(childPath)
		if err != nil {
			logSkip("%s: %v", childPath, err)
			continue
		}
		if c.self != nil {
			if raw, err := os.Lstat(childPath); err == nil && fsutil.SameFile(raw, c.self) {
				continue
			}
		}
		if err := c.insertPath(childInfo, dirEntryID, de.Name()); err != nil {
			return err
		}
	}
	return nil
}

// runCompressBarrier forks every queued compress job concurrently (no
// mmap access happens inside a job — only exec + byte I/O), waits for all
// of them, then sequentially writes each result into the archive. A child
// that fails leaves its path reported as uncompressible and removed from
// the archive, per spec §7's resource-exhaustion handling.
func (c *insertCtx) runCompressBarrier() {
	if len(c.jobs) == 0 {
		return
	}

	results := make([]compressResult, len(c.jobs))
	var wg sync.WaitGroup
	for i, job := range c.jobs {
		wg.Add(1)
		go func(i int, job compressJob) {
			defer wg.Done()
			zipped, err := gzipc.Compress(job.path)
			results[i] = compressResult{job: job, payload: zipped, err: err}
		}(i, job)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			logSkip("%s: uncompressible, skipped: %v", r.job.path, r.err)
			c.arch.Paths.DeleteEntry(r.job.entryID, r.job.parentID)
			continue
		}
		block, err := c.arch.Allocator().InsertBytes(r.payload, true)
		if err != nil {
			logSkip("%s: %v", r.job.path, err)
			c.arch.Paths.DeleteEntry(r.job.entryID, r.job.parentID)
			continue
		}
		if r.job.hadPrevChunk {
			c.arch.Allocator().Delete(r.job.prevPointer)
		}
		c.arch.Table.SetPointer(r.job.entryID, block)
	}
}
