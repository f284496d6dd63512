//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

// Package results persists harness run outcomes in a local bolt
// database so that runs can be compared across invocations.
package results

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/daos-stack/rift/logging"
)

var resultsBucket = []byte("results")

// Entry records the outcome of one scenario run.
type Entry struct {
	Scenario     string    `json:"scenario"`
	ConfigDigest string    `json:"config_digest"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Passed       bool      `json:"passed"`
	Failures     []string  `json:"failures,omitempty"`
}

// Duration returns the wall-clock duration of the run.
func (e *Entry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Digest returns a stable hash of the given scenario configuration,
// used to tell whether two runs used the same settings.
func Digest(cfg interface{}) (string, error) {
	hash, err := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
	if err != nil {
		return "", errors.Wrap(err, "hash scenario config")
	}
	return fmt.Sprintf("%016x", hash), nil
}

// Store is a bolt-backed results database.
type Store struct {
	log logging.Logger
	db  *bbolt.DB
}

// Open opens or creates the results database at the given path.
func Open(log logging.Logger, path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open results db %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create results bucket")
	}

	log.Debugf("results db open at %s", path)
	return &Store{log: log, db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// entryKey orders entries by scenario, then start time.
func entryKey(e *Entry) []byte {
	return []byte(fmt.Sprintf("%s/%s", e.Scenario, e.Start.UTC().Format(time.RFC3339Nano)))
}

// Record persists one run outcome.
func (s *Store) Record(entry *Entry) error {
	if entry == nil {
		return errors.New("nil results entry")
	}
	if entry.Scenario == "" {
		return errors.New("results entry has no scenario name")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal results entry")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(resultsBucket).Put(entryKey(entry), data)
	})
}

// List returns all recorded entries for the given scenario, oldest
// first, or every entry if scenario is empty.
func (s *Store) List(scenario string) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(resultsBucket).ForEach(func(k, v []byte) error {
			entry := new(Entry)
			if err := json.Unmarshal(v, entry); err != nil {
				return errors.Wrapf(err, "unmarshal results entry %q", k)
			}
			if scenario == "" || entry.Scenario == scenario {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
