package index

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by Search before any snapshot has ever been built.
// It is the only index failure surfaced to search callers; rebuild failures
// are logged and absorbed while the previous snapshot keeps serving.
var ErrNotReady = errors.New("index not ready")

// BuildError reports a failed rebuild attempt for a corpus.
type BuildError struct {
	Corpus string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("rebuild corpus %s: %v", e.Corpus, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// PersistenceError reports a failed snapshot or fingerprint write. A rebuild
// whose persistence fails is treated as a failed rebuild.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
