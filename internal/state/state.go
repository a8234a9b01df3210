// Package state persists the history of write operations per output
// directory in a bbolt database.
package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	// DefaultHistoryLimit is how many operations History returns when
	// asked for zero or fewer.
	DefaultHistoryLimit = 20

	// maxHistory bounds the operations kept per output directory.
	maxHistory = 1000

	historyPrefix = "history:"
)

var (
	appBucket     = []byte("app")
	schemaKey     = []byte("schema")
	schemaVersion = []byte("1")
)

func historyBucket(output string) []byte {
	return []byte(historyPrefix + output)
}

// Operation kinds.
const (
	KindUpload          = "upload"
	KindUploadInstances = "upload_instances"
	KindSkipLog         = "skipped"
)

// Operation is one completed write operation.
type Operation struct {
	Kind    string    `json:"kind"`
	Output  string    `json:"output"`
	Wrote   int       `json:"wrote"`
	Skipped int       `json:"skipped"`
	At      time.Time `json:"at"`
}

// State wraps a bbolt database.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}

		return b.Put(schemaKey, schemaVersion)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Record appends op to the history of its output directory, dropping the
// oldest entries beyond the retention limit.
func (s *State) Record(op Operation) error {
	if op.Output == "" {
		return fmt.Errorf("operation has no output directory")
	}

	if op.At.IsZero() {
		op.At = time.Now()
	}

	op.At = op.At.UTC()

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("encoding operation: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(historyBucket(op.Output))
		if err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}

		return prune(b, maxHistory)
	})
}

// History returns up to limit operations for output, newest first.
func (s *State) History(output string, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	ops := []Operation{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(historyBucket(output))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(ops) < limit; k, v = c.Prev() {
			var op Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("decoding operation %d: %w", binary.BigEndian.Uint64(k), err)
			}

			ops = append(ops, op)
		}

		return nil
	})

	return ops, err
}

// Outputs lists the output directories that have history.
func (s *State) Outputs() ([]string, error) {
	var out []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if n := string(name); strings.HasPrefix(n, historyPrefix) {
				out = append(out, strings.TrimPrefix(n, historyPrefix))
			}

			return nil
		})
	})

	return out, err
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)

	return k
}

// prune deletes the oldest keys until at most keep remain.
func prune(b *bolt.Bucket, keep int) error {
	var keys [][]byte

	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for len(keys) > keep {
		if err := b.Delete(keys[0]); err != nil {
			return err
		}

		keys = keys[1:]
	}

	return nil
}
