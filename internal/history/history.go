// Package history keeps a log of finished sync runs in a bbolt database.
//
// Runs are grouped in one nested bucket per account/album pair under a top
// level "runs" bucket. Keys sort by start time, so the newest run of a pair
// is always the last key of its bucket.
package history

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	bolt "go.etcd.io/bbolt"

	"github.com/handiism/photo-mirror/internal/engine"
	ioutils "github.com/handiism/photo-mirror/internal/io"
	"github.com/handiism/photo-mirror/internal/model"
)

var bucketRuns = []byte("runs")

// DefaultKeep is how many runs are kept per account/album when Open is
// given a non-positive keep.
const DefaultKeep = 50

// Entry is one recorded run.
type Entry struct {
	ID        string      `json:"id"`
	Account   string      `json:"account"`
	Album     string      `json:"album"`
	Folder    string      `json:"folder"`
	Started   time.Time   `json:"started"`
	Finished  time.Time   `json:"finished"`
	DryRun    bool        `json:"dry_run,omitempty"`
	Cancelled bool        `json:"cancelled,omitempty"`
	Fatal     string      `json:"fatal,omitempty"`
	Tally     model.Tally `json:"tally"`
}

// Duration is how long the run took.
func (e Entry) Duration() time.Duration {
	return e.Finished.Sub(e.Started)
}

// Store records runs and implements engine.Recorder.
type Store struct {
	db   *bolt.DB
	keep int
}

// Open opens or creates the database at path, creating its directory.
func Open(path string, keep int) (*Store, error) {
	if keep <= 0 {
		keep = DefaultKeep
	}
	if err := ioutils.EnsureDir(afero.NewOsFs(), filepath.Dir(path)); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, keep: keep}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func pairKey(account, album string) []byte {
	return []byte(account + "/" + album)
}

// runKey orders runs by start time; the id breaks ties.
func runKey(started time.Time, id uuid.UUID) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(started.UnixNano()))
	return append(key, id[:]...)
}

// Record implements engine.Recorder. Runs that stopped before the account
// was resolved are stored under the account as given.
func (s *Store) Record(ctx context.Context, r *engine.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	account := r.Account
	if account == "" {
		account = r.Job.Account
	}

	id := uuid.New()
	entry := Entry{
		ID:        id.String(),
		Account:   account,
		Album:     r.Job.Album,
		Folder:    r.Folder,
		Started:   r.Started,
		Finished:  r.Finished,
		DryRun:    r.Job.DryRun,
		Cancelled: r.Cancelled,
		Tally:     r.Tally,
	}
	if r.Fatal != nil {
		entry.Fatal = r.Fatal.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketRuns).CreateBucketIfNotExists(pairKey(account, entry.Album))
		if err != nil {
			return err
		}
		if err := b.Put(runKey(entry.Started, id), data); err != nil {
			return err
		}
		return prune(b, s.keep)
	})
}

// prune deletes the oldest runs of b beyond keep.
func prune(b *bolt.Bucket, keep int) error {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	if len(keys) <= keep {
		return nil
	}
	for _, k := range keys[:len(keys)-keep] {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// List returns up to limit runs, newest first. An empty album lists every
// album of the account and an empty account lists everything. A
// non-positive limit returns all runs.
func (s *Store) List(account, album string, limit int) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketRuns)
		return root.ForEachBucket(func(name []byte) error {
			if !matches(string(name), account, album) {
				return nil
			}
			c := root.Bucket(name).Cursor()
			for k, v := c.Last(); k != nil; k, v = c.Prev() {
				var e Entry
				if err := json.Unmarshal(v, &e); err != nil {
					return fmt.Errorf("decode run %s: %w", name, err)
				}
				entries = append(entries, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Started.After(entries[j].Started)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Last returns the newest run of an account/album pair.
func (s *Store) Last(account, album string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns).Bucket(pairKey(account, album))
		if b == nil {
			return nil
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &entry)
	})
	return entry, found, err
}

func matches(pair, account, album string) bool {
	if account == "" {
		return true
	}
	if album == "" {
		return len(pair) > len(account) && pair[:len(account)+1] == account+"/"
	}
	return pair == account+"/"+album
}
