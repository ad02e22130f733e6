package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListEmpty(t *testing.T) {
	records, err := openStore(t).List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records from empty store", len(records))
	}
}

func TestSaveAndList(t *testing.T) {
	s := openStore(t)
	finished := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		id, err := s.Save(Record{
			Finished:   finished.Add(time.Duration(i) * time.Minute),
			Dir:        "/data/rb",
			Files:      4,
			FileSize:   4096,
			ChunkSize:  4096,
			Iterations: 8 * i,
			Strategy:   "parallel",
			Direct:     true,
			BytesRead:  int64(32768 * i),
			Elapsed:    time.Duration(i) * time.Millisecond,
			AvgLatency: 125 * time.Microsecond,
			Throughput: 250.5,
			Fallbacks:  i - 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if id != uint64(i) {
			t.Fatalf("Save returned id %d, want %d", id, i)
		}
	}

	records, err := s.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("List(2) returned %d records", len(records))
	}

	newest := records[0]
	if newest.ID != 3 || records[1].ID != 2 {
		t.Fatalf("records not newest first: %d, %d", newest.ID, records[1].ID)
	}
	if newest.Iterations != 24 || newest.BytesRead != 98304 || newest.Fallbacks != 2 {
		t.Fatalf("unexpected record contents: %+v", newest)
	}
	if !newest.Direct || newest.Strategy != "parallel" || newest.Dir != "/data/rb" {
		t.Fatalf("unexpected record contents: %+v", newest)
	}
	if newest.Elapsed != 3*time.Millisecond || newest.AvgLatency != 125*time.Microsecond {
		t.Fatalf("durations not preserved: %+v", newest)
	}
	if !newest.Finished.Equal(finished.Add(3 * time.Minute)) {
		t.Fatalf("Finished = %v", newest.Finished)
	}

	all, err := s.List(0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List(0) = %d records, %v", len(all), err)
	}
}
