// Package history keeps a record of finished runs in a bolt database
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fastjson"
	bolt "go.etcd.io/bbolt"
)

var runsBucket = []byte("runs")

// Record is the persisted summary of one run
type Record struct {
	ID         uint64        `json:"id"`
	Finished   time.Time     `json:"finished"`
	Dir        string        `json:"dir"`
	Files      int           `json:"files"`
	FileSize   int64         `json:"file_size"`
	ChunkSize  int64         `json:"chunk_size"`
	Iterations int           `json:"iterations"`
	Strategy   string        `json:"strategy"`
	Direct     bool          `json:"direct"`
	BytesRead  int64         `json:"bytes_read"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
	Throughput float64       `json:"throughput_mibs"`
	Fallbacks  int           `json:"fallbacks"`
}

// Store is an open history database
type Store struct {
	db *bolt.DB
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends rec and returns the id assigned to it
func (s *Store) Save(rec Record) (uint64, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(runsBucket)
		if err != nil {
			return err
		}

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = id

		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(itob(id), value)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	return rec.ID, nil
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		if b == nil {
			return nil
		}

		var p fastjson.Parser
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			rec, err := decode(&p, v)
			if err != nil {
				return fmt.Errorf("run %d: %w", binary.BigEndian.Uint64(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}

// decode reads a stored record. Fields missing from older records keep
// their zero value.
func decode(p *fastjson.Parser, data []byte) (Record, error) {
	v, err := p.ParseBytes(data)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         v.GetUint64("id"),
		Dir:        string(v.GetStringBytes("dir")),
		Files:      v.GetInt("files"),
		FileSize:   v.GetInt64("file_size"),
		ChunkSize:  v.GetInt64("chunk_size"),
		Iterations: v.GetInt("iterations"),
		Strategy:   string(v.GetStringBytes("strategy")),
		Direct:     v.GetBool("direct"),
		BytesRead:  v.GetInt64("bytes_read"),
		Elapsed:    time.Duration(v.GetInt64("elapsed_ns")),
		AvgLatency: time.Duration(v.GetInt64("avg_latency_ns")),
		Throughput: v.GetFloat64("throughput_mibs"),
		Fallbacks:  v.GetInt("fallbacks"),
	}

	if ts := v.GetStringBytes("finished"); len(ts) > 0 {
		rec.Finished, err = time.Parse(time.RFC3339Nano, string(ts))
		if err != nil {
			return Record{}, fmt.Errorf("bad timestamp: %w", err)
		}
	}

	return rec, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
