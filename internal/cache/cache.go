// Package cache talks to the kernel about the page cache and the
// filesystem's direct io geometry.
package cache

import (
	"errors"
	"io/fs"
	"os"

	"github.com/golang/glog"
	"github.com/jessegalley/readbench/internal/ioerr"
	"golang.org/x/sys/unix"
)

// DropCachesPath is the linux interface for evicting clean caches
const DropCachesPath = "/proc/sys/vm/drop_caches"

// dropAll frees the page cache plus dentries and inodes
const dropAll = "3\n"

// Controller drops the page cache through a kernel control file
type Controller struct {
	Path string
}

// NewController returns a Controller writing to path, or to the linux
// default when path is empty
func NewController(path string) *Controller {
	if path == "" {
		path = DropCachesPath
	}
	return &Controller{Path: path}
}

// DropAll flushes dirty pages and then asks the kernel to evict cached
// file data. Lacking privilege yields a permission error; anything else
// a filesystem error. Both are fatal to a run.
func (c *Controller) DropAll() error {
	// dirty pages cannot be dropped, so write them back first
	unix.Sync()

	f, err := os.OpenFile(c.Path, os.O_WRONLY, 0)
	if err != nil {
		return classify("open", c.Path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(dropAll); err != nil {
		return classify("write", c.Path, err)
	}

	glog.V(1).Infof("dropped page cache via %s", c.Path)
	return nil
}

func classify(op, path string, err error) error {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) || errors.Is(err, fs.ErrPermission) {
		return ioerr.New(ioerr.KindPermission, op, path, err)
	}
	return ioerr.New(ioerr.KindFilesystem, op, path, err)
}

// ProbeAlignment reports the block size of the filesystem holding dir,
// used as the direct io alignment unit. It falls back to fallback when
// the filesystem reports something unusable.
func ProbeAlignment(dir string, fallback int) (int, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, ioerr.New(ioerr.KindFilesystem, "statfs", dir, err)
	}

	bsize := int(st.Bsize)
	if bsize <= 0 || bsize&(bsize-1) != 0 {
		glog.Warningf("filesystem at %s reports block size %d, using %d", dir, bsize, fallback)
		return fallback, nil
	}

	glog.V(1).Infof("filesystem at %s reports block size %d", dir, bsize)
	return bsize, nil
}
