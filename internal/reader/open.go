package reader

import (
	"errors"
	"os"

	"github.com/ncw/directio"
	"golang.org/x/sys/unix"

	"github.com/jessegalley/readbench/internal/ioerr"
)

// Mode is the io mode a file ended up opened with
type Mode int

const (
	// ModeBuffered means reads go through the page cache
	ModeBuffered Mode = iota

	// ModeDirect means the file was opened with o_direct
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "buffered"
}

// OpenResult is the outcome of probing a file for direct io support
type OpenResult struct {
	File *os.File
	Mode Mode

	// Fallback is set when direct io was requested but the filesystem
	// refused it
	Fallback bool
}

// openDirect is swapped out by tests to simulate filesystems without
// o_direct support
var openDirect = directio.OpenFile

// Probe opens path read-only. With direct set it first asks for o_direct
// and, if the filesystem rejects the flag, retries with buffered io and
// tags the result. Any other failure is an open error.
func Probe(path string, direct bool) (OpenResult, error) {
	if direct {
		f, err := openDirect(path, os.O_RDONLY, 0)
		if err == nil {
			return OpenResult{File: f, Mode: ModeDirect}, nil
		}
		if !errors.Is(err, unix.EINVAL) {
			return OpenResult{}, ioerr.New(ioerr.KindOpen, "open", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return OpenResult{}, ioerr.New(ioerr.KindOpen, "open", path, err)
	}

	return OpenResult{File: f, Mode: ModeBuffered, Fallback: direct}, nil
}
