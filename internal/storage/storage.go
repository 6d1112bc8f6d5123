// Package storage persists interaction ranking runs. It uses BoltDB as the
// storage engine and keys runs by creation time so that history queries are
// cursor range scans.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"fast-interactions/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	dbFile     = "fast-interactions.db"
	runsBucket = "runs"    // run records keyed by "<unix nanos>_<id>"
	idsBucket  = "run_ids" // id -> runs bucket key
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("storage: run not found")

// RunSettings are the options a run was measured with.
type RunSettings struct {
	Objective          string `json:"objective,omitempty"`
	MaxInteractionBins int    `json:"max_interaction_bins"`
	MinSamplesLeaf     int    `json:"min_samples_leaf"`
	TopK               int    `json:"top_k,omitempty"`
}

// Run is one stored measurement.
type Run struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Source    string      `json:"source"`
	Target    string      `json:"target,omitempty"`
	Samples   int         `json:"samples"`
	Settings  RunSettings `json:"settings"`
	Result    *ml.Result  `json:"result"`
}

// Store provides persistent storage for ranking runs.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the run database under dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(idsBucket)); err != nil {
			return fmt.Errorf("create run ids bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// unixNanos clamps ts to the range UnixNano can represent, with times before
// the epoch mapped to 0 so keys stay fixed width.
func unixNanos(ts time.Time) int64 {
	switch {
	case ts.Before(time.Unix(0, 0)):
		return 0
	case ts.After(time.Unix(0, math.MaxInt64)):
		return math.MaxInt64
	default:
		return ts.UnixNano()
	}
}

func runKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", unixNanos(ts), id))
}

func timeKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", unixNanos(ts)))
}

// SaveRun stores a run, assigning an id and creation time when they are
// unset, and returns the stored run.
func (s *Store) SaveRun(run Run) (Run, error) {
	if run.Result == nil {
		return Run{}, errors.New("storage: run has no result")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket([]byte(idsBucket))
		if ids.Get([]byte(run.ID)) != nil {
			return fmt.Errorf("storage: run %s already exists", run.ID)
		}

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}

		key := runKey(run.CreatedAt, run.ID)
		if err := tx.Bucket([]byte(runsBucket)).Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(run.ID), key)
	})
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(id string) (Run, error) {
	var run Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(idsBucket)).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		data := tx.Bucket([]byte(runsBucket)).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err := json.Unmarshal(data, &run); err != nil {
			return fmt.Errorf("unmarshal run %s: %w", id, err)
		}
		return nil
	})
	return run, err
}

// ListRuns returns the runs created within [start, end], oldest first.
// Malformed records are skipped.
func (s *Store) ListRuns(start, end time.Time) ([]Run, error) {
	var runs []Run

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		endKey := timeKey(end)

		for k, v := c.Seek(timeKey(start)); k != nil; k, v = c.Next() {
			if bytes.Compare(k[:len(endKey)], endKey) > 0 {
				break
			}
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket([]byte(idsBucket))
		key := ids.Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err := tx.Bucket([]byte(runsBucket)).Delete(key); err != nil {
			return err
		}
		return ids.Delete([]byte(id))
	})
}
