// Package layout provisions the flat set of test files a benchmark reads.
package layout

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/jessegalley/readbench/internal/entropy"
	"github.com/jessegalley/readbench/internal/ioerr"
)

// writeBlockSize bounds the memory used while filling a file
const writeBlockSize = 1 << 20

// alphabet is the number of symbols cycled through by the pattern fill
const alphabet = 26

// FillPolicy selects what gets written into a freshly created file
type FillPolicy int

const (
	// FillPattern writes byte j as 'A' + j mod 26
	FillPattern FillPolicy = iota

	// FillRandom writes bytes drawn from the entropy source
	FillRandom

	// FillSkip creates an empty file, reserving only the name
	FillSkip
)

func (p FillPolicy) String() string {
	switch p {
	case FillPattern:
		return "pattern"
	case FillRandom:
		return "random"
	case FillSkip:
		return "skip"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// FileSet maps the file indices 1..Count to paths inside Dir
type FileSet struct {
	Dir   string
	Count int
}

// Path returns the path of file i, <dir>/f<i>
func (s FileSet) Path(i int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("f%d", i))
}

// Paths returns every path in index order
func (s FileSet) Paths() []string {
	paths := make([]string, 0, s.Count)
	for i := 1; i <= s.Count; i++ {
		paths = append(paths, s.Path(i))
	}
	return paths
}

// Reset removes dir and everything below it, then recreates it empty
func Reset(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return ioerr.New(ioerr.KindFilesystem, "remove", dir, err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return ioerr.New(ioerr.KindFilesystem, "mkdir", dir, err)
	}

	return nil
}

// Provisioner creates test files
type Provisioner struct {
	src entropy.Source
}

// NewProvisioner returns a Provisioner drawing random fill from src
func NewProvisioner(src entropy.Source) *Provisioner {
	return &Provisioner{src: src}
}

// Provision resets the set's directory and creates every file in it.
// The first failure aborts provisioning; the error names the failing index.
func (p *Provisioner) Provision(set FileSet, size int64, policy FillPolicy) error {
	if err := Reset(set.Dir); err != nil {
		return err
	}

	if err := p.createAll(set, size, policy); err != nil {
		return err
	}

	glog.V(1).Infof("provisioned %d files of %d bytes in %s (%s fill)", set.Count, size, set.Dir, policy)
	return nil
}

// createAll creates files 1..Count in order, stopping at the first failure
func (p *Provisioner) createAll(set FileSet, size int64, policy FillPolicy) error {
	for i := 1; i <= set.Count; i++ {
		if err := p.CreateFile(set.Path(i), size, policy); err != nil {
			return fmt.Errorf("failed to provision file %d of %d: %w", i, set.Count, err)
		}
	}
	return nil
}

// CreateFile creates path with exactly size bytes of content chosen by
// policy. Content is written in bounded blocks and synced before close.
func (p *Provisioner) CreateFile(path string, size int64, policy FillPolicy) (err error) {
	if size < 0 {
		return ioerr.New(ioerr.KindFilesystem, "create", path, fmt.Errorf("negative file size %d", size))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return ioerr.New(ioerr.KindFilesystem, "create", path, err)
	}

	// ensure file is closed on every path, keeping the first error
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ioerr.New(ioerr.KindFilesystem, "close", path, cerr)
		}
	}()

	if policy != FillSkip {
		if err := p.fill(f, size, policy); err != nil {
			return ioerr.New(ioerr.KindFilesystem, "write", path, err)
		}
	}

	// sync file to ensure data is written to disk
	if err := f.Sync(); err != nil {
		return ioerr.New(ioerr.KindFilesystem, "sync", path, err)
	}

	return nil
}

// fill writes size bytes to w, one block at a time
func (p *Provisioner) fill(w io.Writer, size int64, policy FillPolicy) error {
	var template []byte
	if policy == FillPattern {
		// one extra period lets any block start at any phase of the alphabet
		template = make([]byte, writeBlockSize+alphabet)
		for j := range template {
			template[j] = byte('A' + j%alphabet)
		}
	}

	for off := int64(0); off < size; {
		n := int(min(int64(writeBlockSize), size-off))

		var block []byte
		switch policy {
		case FillPattern:
			phase := int(off % alphabet)
			block = template[phase : phase+n]
		case FillRandom:
			b, err := p.src.NextRandomBytes(n)
			if err != nil {
				return err
			}
			block = b
		default:
			return fmt.Errorf("unknown fill policy %s", policy)
		}

		if _, err := w.Write(block); err != nil {
			return err
		}
		off += int64(n)
	}

	return nil
}

// CheckExisting reports whether path is a regular file of exactly size
// bytes. Reuse mode trusts the file set without calling it.
func CheckExisting(path string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == size
}
