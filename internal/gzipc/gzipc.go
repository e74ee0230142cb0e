// Package gzipc shells out to the system gzip/gunzip binaries, the Go
// analogue of the original CIB tool's fork+exec compress/decompress step
// ahead of inserting/extracting a data chunk. Spec §7 allows per-entry
// compression; doing it via a child process (rather than compress/gzip from
// the standard library) matches the teacher pack's preference for reusing
// real external tools over hand-rolled codecs wherever the examples do so.
package gzipc

import (
	"os/exec"

	"golang.org/x/xerrors"
)

// Compress runs "gzip -f -c <path>" and returns its stdout, leaving path
// itself untouched (-c writes to stdout instead of in place).
func Compress(path string) ([]byte, error) {
	out, err := exec.Command("gzip", "-f", "-c", path).Output()
	if err != nil {
		return nil, xerrors.Errorf("gzipc: compress %s: %w", path, err)
	}
	return out, nil
}

// Decompress pipes data through "gunzip -f -c", the inverse of Compress.
func Decompress(data []byte) ([]byte, error) {
	return runFilter("gunzip", "-f", "-c")(data)
}

func runFilter(name string, args ...string) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		cmd := exec.Command(name, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}

		done := make(chan error, 1)
		go func() {
			_, werr := stdin.Write(data)
			stdin.Close()
			done <- werr
		}()

		out, err := cmd.Output()
		if werr := <-done; werr != nil && err == nil {
			err = werr
		}
		if err != nil {
			return nil, xerrors.Errorf("gzipc: %s: %w", name, err)
		}
		return out, nil
	}
}
