// Package store provides the Badger DB-backed project catalog and diff cache
// used by sysprintd.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// Key prefixes for different data types
const (
	prefixProject = "p:" // Project records
	prefixDiff    = "d:" // Cached comparisons, d:<source>|<target>
	prefixMeta    = "m:" // Metadata (schema, etc.)
)

// ErrNotFound is returned when a project is not in the catalog.
var ErrNotFound = errors.New("not found")

// Project is the catalog record for one stored archive.
type Project struct {
	ID string `json:"id"`
	// Name is the file name the archive was uploaded under.
	Name string `json:"name"`
	// URL is the blob location of the archive.
	URL  string `json:"url"`
	Size int64  `json:"size"`

	Host          string           `json:"host"`
	Platform      string           `json:"platform"`
	Created       time.Time        `json:"created"`
	HashAlgorithm string           `json:"hash_algorithm"`
	Mode          string           `json:"mode"`
	Roots         []string         `json:"roots"`
	Summary       manifest.Summary `json:"summary"`

	StoredAt   time.Time `json:"stored_at"`
	LastAccess time.Time `json:"last_access"`
}

// Store is the catalog storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func projectKey(id string) []byte {
	return []byte(prefixProject + id)
}

func diffKey(source, target string) []byte {
	return []byte(prefixDiff + source + "|" + target)
}

// PutProject stores or replaces a project record.
func (s *Store) PutProject(p *Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(projectKey(p.ID), data)
	})
}

// GetProject retrieves a project by id.
func (s *Store) GetProject(id string) (*Project, error) {
	var p Project

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(projectKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListProjects returns every project, oldest upload first.
func (s *Store) ListProjects() ([]*Project, error) {
	var results []*Project

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixProject)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p Project
				if err := json.Unmarshal(val, &p); err != nil {
					return err
				}
				results = append(results, &p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	sort.Slice(results, func(i, j int) bool {
		if !results[i].StoredAt.Equal(results[j].StoredAt) {
			return results[i].StoredAt.Before(results[j].StoredAt)
		}
		return results[i].ID < results[j].ID
	})

	return results, err
}

// CountProjects returns the number of stored projects.
func (s *Store) CountProjects() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixProject)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// TouchProject sets a project's last access time.
func (s *Store) TouchProject(id string, at time.Time) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(projectKey(id))
		if err != nil {
			return err
		}
		var p Project
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		}); err != nil {
			return err
		}
		p.LastAccess = at
		data, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		return txn.Set(projectKey(id), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return err
}

// DeleteProject removes a project record and every cached comparison that
// involves it, in one transaction. Deleting a missing project is not an
// error.
func (s *Store) DeleteProject(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(projectKey(id)); err != nil {
			return err
		}
		return deleteDiffs(txn, id)
	})
}

// PutDiff caches the comparison of source against target. A positive ttl
// expires the entry.
func (s *Store) PutDiff(source, target string, r *diff.Result, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(diffKey(source, target), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// GetDiff returns a cached comparison. The boolean is false on a miss.
func (s *Store) GetDiff(source, target string) (*diff.Result, bool, error) {
	var r diff.Result

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diffKey(source, target))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return &r, true, nil
}

// InvalidateDiffs removes every cached comparison involving id and returns
// how many were removed.
func (s *Store) InvalidateDiffs(id string) (int, error) {
	var count int
	err := s.db.Update(func(txn *badger.Txn) error {
		keys := diffKeysFor(txn, id)
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		count = len(keys)
		return nil
	})
	return count, err
}

func deleteDiffs(txn *badger.Txn, id string) error {
	for _, key := range diffKeysFor(txn, id) {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func diffKeysFor(txn *badger.Txn, id string) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	prefix := []byte(prefixDiff)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		pair := strings.TrimPrefix(string(it.Item().Key()), prefixDiff)
		source, target, _ := strings.Cut(pair, "|")
		if source == id || target == id {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	return keys
}
