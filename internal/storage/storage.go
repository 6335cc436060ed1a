// Package storage persists per-run pipeline artifacts: the run manifest,
// one checkpoint per trained replicate, and the compound score matrix. It
// uses BoltDB as the underlying storage engine.
//
// Keys are namespaced by run identifier so concurrent or repeated runs
// never contend; artifacts are written once and treated as immutable.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	manifestsBucket   = "manifests"   // run metadata by run ID
	checkpointsBucket = "checkpoints" // replicate checkpoints, key runID/fold_NNN
	scoresBucket      = "scores"      // score matrix rows, key runID/compoundID
)

// ErrMissingArtifact is returned when a requested run has no persisted
// manifest, or its checkpoints are absent or incomplete. Predict-only mode
// treats this as fatal for the run.
var ErrMissingArtifact = errors.New("missing run artifact")

// Manifest records what a run trained, so predict-only reruns can restore
// the exact ensemble and report the original resolution context.
type Manifest struct {
	RunID        string    `json:"run_id"`
	Scorer       string    `json:"scorer"`
	Seed         int64     `json:"seed"`
	Targets      []string  `json:"targets,omitempty"`
	Positives    int       `json:"positives,omitempty"`
	EnsembleSize int       `json:"ensemble_size"`
	UsableFolds  []int     `json:"usable_folds"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScoreRow is one compound's per-replicate scores, ordered by the
// manifest's usable fold list. NaN marks a replicate that could not score
// the compound.
type ScoreRow struct {
	CompoundID string
	Scores     []float64
}

// scoreRowJSON is the wire form; NaN is not valid JSON so missing cells
// are encoded as null.
type scoreRowJSON struct {
	CompoundID string     `json:"compound_id"`
	Scores     []*float64 `json:"scores"`
}

// RunStore provides persistent storage for run artifacts using BoltDB.
type RunStore struct {
	db *bbolt.DB
}

// Open creates or opens the artifact database under dataPath.
func Open(dataPath string) (*RunStore, error) {
	dbPath := filepath.Join(dataPath, "herbrank-runs.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{manifestsBucket, checkpointsBucket, scoresBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &RunStore{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *RunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutManifest stores the run manifest.
func (s *RunStore) PutManifest(m Manifest) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal manifest: %w", err)
		}
		return tx.Bucket([]byte(manifestsBucket)).Put([]byte(m.RunID), data)
	})
}

// GetManifest retrieves the manifest for a run, or ErrMissingArtifact.
func (s *RunStore) GetManifest(runID string) (Manifest, error) {
	var m Manifest
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(manifestsBucket)).Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: no manifest for run %s", ErrMissingArtifact, runID)
		}
		return json.Unmarshal(data, &m)
	})
	return m, err
}

// PutCheckpoint stores one replicate's checkpoint for a run.
func (s *RunStore) PutCheckpoint(runID string, fold int, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := fmt.Sprintf("%s/fold_%03d", runID, fold)
		return tx.Bucket([]byte(checkpointsBucket)).Put([]byte(key), data)
	})
}

// GetCheckpoint retrieves one replicate's checkpoint, or ErrMissingArtifact.
func (s *RunStore) GetCheckpoint(runID string, fold int) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := fmt.Sprintf("%s/fold_%03d", runID, fold)
		data := tx.Bucket([]byte(checkpointsBucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: no checkpoint %s", ErrMissingArtifact, key)
		}
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

// PutScores stores the score matrix rows for a run in one transaction.
func (s *RunStore) PutScores(runID string, rows []ScoreRow) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scoresBucket))
		for _, row := range rows {
			data, err := json.Marshal(toJSONRow(row))
			if err != nil {
				return fmt.Errorf("marshal score row: %w", err)
			}
			key := fmt.Sprintf("%s/%s", runID, row.CompoundID)
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetScores retrieves all persisted score rows for a run via a prefix
// scan. An empty result is not an error; callers decide whether a missing
// matrix means inference must rerun.
func (s *RunStore) GetScores(runID string) ([]ScoreRow, error) {
	var rows []ScoreRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(scoresBucket)).Cursor()
		prefix := []byte(runID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var jr scoreRowJSON
			if err := json.Unmarshal(v, &jr); err != nil {
				continue // skip malformed records
			}
			rows = append(rows, fromJSONRow(jr))
		}
		return nil
	})
	return rows, err
}

func toJSONRow(row ScoreRow) scoreRowJSON {
	jr := scoreRowJSON{CompoundID: row.CompoundID, Scores: make([]*float64, len(row.Scores))}
	for i, v := range row.Scores {
		if math.IsNaN(v) {
			continue
		}
		v := v
		jr.Scores[i] = &v
	}
	return jr
}

func fromJSONRow(jr scoreRowJSON) ScoreRow {
	row := ScoreRow{CompoundID: jr.CompoundID, Scores: make([]float64, len(jr.Scores))}
	for i, p := range jr.Scores {
		if p == nil {
			row.Scores[i] = math.NaN()
		} else {
			row.Scores[i] = *p
		}
	}
	return row
}
