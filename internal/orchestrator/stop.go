package orchestrator

import (
	"errors"
	"os"

	"github.com/mitchellh/go-homedir"
)

// ErrStopRequested ends a session in an orderly way: memory is flushed and no further
// triggers are sent.
var ErrStopRequested = errors.New("stop requested")

// StopSignal reports whether the operator asked the bot to stop.
type StopSignal interface {
	StopRequested() bool
}

// Never is a StopSignal that never fires.
type Never struct{}

func (Never) StopRequested() bool { return false }

// FileSentinel fires while a file exists at its path.
type FileSentinel struct {
	path string
}

// NewFileSentinel expands a leading ~ in path. An empty path never fires.
func NewFileSentinel(path string) (*FileSentinel, error) {
	if path == "" {
		return &FileSentinel{}, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return &FileSentinel{path: expanded}, nil
}

func (f *FileSentinel) StopRequested() bool {
	if f.path == "" {
		return false
	}
	_, err := os.Stat(f.path)
	return err == nil
}

// Path is the watched file.
func (f *FileSentinel) Path() string { return f.path }
