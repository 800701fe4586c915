package lsm

import "errors"

// Error kinds exposed at the engine boundary.
var (
	// ErrNotFound is not returned by any lookup path in this package;
	// Engine.Get reports a missing key as (nil, false, nil) rather
	// than as an error.
	ErrNotFound = errors.New("lsm: key not found")

	// ErrClosed is returned by any operation submitted after Close/
	// shutdown has begun.
	ErrClosed = errors.New("lsm: engine is closed")

	// ErrCorrupt marks WAL record decode and checksum failures; WAL
	// replay truncates the torn tail and continues. SSTable files are
	// not read by Open, and SSTable read or decode failures surface
	// from Get as their own errors, not as ErrCorrupt.
	ErrCorrupt = errors.New("lsm: corrupt record")
)
