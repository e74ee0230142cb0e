package blockstore

import "golang.org/x/xerrors"

// ErrCorrupt reports a violation of an on-disk invariant: a boundary-tag
// mismatch, a dangling block pointer, a bitmap/entry disagreement. These are
// fatal — per spec §7 they indicate a bug or a damaged file and are never
// locally recoverable the way a per-path input error is.
type ErrCorrupt struct {
	Where string
	Want  interface{}
	Got   interface{}
}

func (e *ErrCorrupt) Error() string {
	return xerrors.Errorf("cib: corrupt archive at %s: want %v, got %v", e.Where, e.Want, e.Got).Error()
}

// ErrNoTrailingFreeChunk is returned by Allocator.RemoveLastChunk when the
// data region's final blocks are currently in use, so there is nothing
// left to reclaim. Callers that shrink in a loop use this to know when to
// stop, rather than looping forever on a bare nil return.
var ErrNoTrailingFreeChunk = xerrors.New("cib: no trailing free chunk to remove")
