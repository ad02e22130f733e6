package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jessegalley/readbench/internal/ioerr"
)

func TestDropAllWritesControlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop_caches")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewController(path).DropAll(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "3\n" {
		t.Fatalf("control file holds %q, want %q", got, "3\n")
	}
}

func TestDropAllPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}

	path := filepath.Join(t.TempDir(), "drop_caches")
	if err := os.WriteFile(path, nil, 0444); err != nil {
		t.Fatal(err)
	}

	err := NewController(path).DropAll()
	if !ioerr.Is(err, ioerr.KindPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestDropAllMissingInterface(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "drop_caches")
	err := NewController(path).DropAll()
	if !ioerr.Is(err, ioerr.KindFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestNewControllerDefaultPath(t *testing.T) {
	if got := NewController("").Path; got != DropCachesPath {
		t.Fatalf("Path = %q, want %q", got, DropCachesPath)
	}
}

func TestProbeAlignment(t *testing.T) {
	align, err := ProbeAlignment(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	if align <= 0 || align&(align-1) != 0 {
		t.Fatalf("alignment %d is not a positive power of two", align)
	}

	if _, err := ProbeAlignment(filepath.Join(t.TempDir(), "nope"), 4096); !ioerr.Is(err, ioerr.KindFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}
