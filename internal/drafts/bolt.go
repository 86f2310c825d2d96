package drafts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var draftsBucket = []byte("drafts")

// BoltStore keeps drafts in a single bbolt file on the local disk.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create drafts dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open drafts db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(draftsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create drafts bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Save(challengeID string, d Draft) error {
	if challengeID == "" {
		return ErrNoChallenge
	}
	d.ChallengeID = challengeID
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(draftsBucket).Put([]byte(Key(challengeID)), raw)
	})
}

func (s *BoltStore) Load(challengeID string) (Draft, bool, error) {
	var (
		d     Draft
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(draftsBucket).Get([]byte(Key(challengeID)))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &d)
	})
	if err != nil {
		return Draft{}, false, fmt.Errorf("load draft %s: %w", challengeID, err)
	}
	return d, found, nil
}
