package archive

import (
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// QueryArchive implements the `-q` CLI mode: for each path, resolve it
// under root and emit "<entry_id>\t<path>" on success or "-\t<path>" when
// absent. Grounded on CIBQuery.
func QueryArchive(w io.Writer, archivePath string, paths []string) error {
	a, err := Open(archivePath)
	if err != nil {
		return xerrors.Errorf("cib: query %s: %w", archivePath, err)
	}
	defer a.Close()
	a.bkl.Lock()
	defer a.bkl.Unlock()

	for _, p := range paths {
		id, found := a.Paths.GetEntry(0, p)
		if !found {
			fmt.Fprintf(w, "-\t%s\n", p)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\n", id, p)
	}
	return nil
}
