package layout

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jessegalley/readbench/internal/entropy"
	"github.com/jessegalley/readbench/internal/ioerr"
)

func TestFileSetPath(t *testing.T) {
	set := FileSet{Dir: "/data/rb", Count: 3}
	if got := set.Path(2); got != "/data/rb/f2" {
		t.Fatalf("Path(2) = %q", got)
	}
	paths := set.Paths()
	if len(paths) != 3 || paths[0] != "/data/rb/f1" || paths[2] != "/data/rb/f3" {
		t.Fatalf("Paths() = %v", paths)
	}
}

func TestPatternFill(t *testing.T) {
	dir := t.TempDir()
	p := NewProvisioner(entropy.NewSeeded(1))

	// span a block boundary so the phase carry between blocks is covered
	size := int64(writeBlockSize + 100)
	path := filepath.Join(dir, "f1")
	if err := p.CreateFile(path, size, FillPattern); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(data)) != size {
		t.Fatalf("file size = %d, want %d", len(data), size)
	}
	for j, b := range data {
		if want := byte('A' + j%26); b != want {
			t.Fatalf("byte %d = %q, want %q", j, b, want)
		}
	}
}

func TestRandomFillUsesSource(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")

	if err := NewProvisioner(entropy.NewSeeded(9)).CreateFile(a, 8192, FillRandom); err != nil {
		t.Fatal(err)
	}
	if err := NewProvisioner(entropy.NewSeeded(9)).CreateFile(b, 8192, FillRandom); err != nil {
		t.Fatal(err)
	}

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if len(da) != 8192 || !bytes.Equal(da, db) {
		t.Fatalf("seeded random fill not reproducible (len %d)", len(da))
	}
}

func TestSkipFillCreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f1")
	if err := NewProvisioner(entropy.NewSeeded(1)).CreateFile(path, 4096, FillSkip); err != nil {
		t.Fatal(err)
	}
	if !CheckExisting(path, 0) {
		t.Fatal("skip fill should leave an empty file")
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	set := FileSet{Dir: filepath.Join(t.TempDir(), "set"), Count: 5}
	p := NewProvisioner(entropy.NewSeeded(3))

	for round := 0; round < 2; round++ {
		if err := p.Provision(set, 4096, FillPattern); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}

		entries, err := os.ReadDir(set.Dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != set.Count {
			t.Fatalf("round %d: %d entries, want %d", round, len(entries), set.Count)
		}
		for _, path := range set.Paths() {
			if !CheckExisting(path, 4096) {
				t.Fatalf("round %d: %s missing or wrong size", round, path)
			}
		}
	}
}

func TestProvisionResetsStaleFiles(t *testing.T) {
	set := FileSet{Dir: t.TempDir(), Count: 2}
	stale := filepath.Join(set.Dir, "stale")
	if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewProvisioner(entropy.NewSeeded(1)).Provision(set, 0, FillPattern); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file survived reset")
	}
	for _, path := range set.Paths() {
		if !CheckExisting(path, 0) {
			t.Fatalf("%s should be a zero length file", path)
		}
	}
}

func TestProvisionFailureNamesIndex(t *testing.T) {
	base := t.TempDir()
	set := FileSet{Dir: filepath.Join(base, "set"), Count: 3}

	// a directory squatting on f2 makes the second creation fail
	p := NewProvisioner(entropy.NewSeeded(1))
	if err := Reset(set.Dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(set.Path(2), 0755); err != nil {
		t.Fatal(err)
	}

	err := p.createAll(set, 16, FillPattern)
	if err == nil {
		t.Fatal("expected provisioning failure")
	}
	if !ioerr.Is(err, ioerr.KindFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
	if !strings.Contains(err.Error(), "file 2 of 3") {
		t.Fatalf("error does not name failing index: %v", err)
	}
	if CheckExisting(set.Path(3), 16) {
		t.Fatal("provisioning continued past the failure")
	}
}

func TestCreateFileNegativeSize(t *testing.T) {
	err := NewProvisioner(entropy.NewSeeded(1)).CreateFile(filepath.Join(t.TempDir(), "f"), -1, FillPattern)
	if !ioerr.Is(err, ioerr.KindFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestResetFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// a path below a regular file can never be created
	if err := Reset(filepath.Join(file, "sub")); !ioerr.Is(err, ioerr.KindFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}
