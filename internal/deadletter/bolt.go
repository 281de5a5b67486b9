// Package deadletter parks events the pipeline gave up on in an embedded BoltDB file.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

const bucketName = "dead_letters"

// Store is a BoltDB-backed dead-letter queue. Keys are the failure time
// followed by the event id, so iteration yields letters oldest first.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the dead-letter file at path
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create dead-letter bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the file lock
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores letter. The same event may be parked more than once.
func (s *Store) Put(ctx context.Context, letter models.DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if letter.FailedAt.IsZero() {
		letter.FailedAt = time.Now().UTC()
	}

	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(key(letter), data)
	})
}

// List returns every parked letter, oldest first
func (s *Store) List() ([]models.DeadLetter, error) {
	letters := []models.DeadLetter{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var letter models.DeadLetter
			if err := json.Unmarshal(v, &letter); err != nil {
				return fmt.Errorf("failed to decode dead letter %s: %w", k, err)
			}
			letters = append(letters, letter)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return letters, nil
}

// Purge removes every letter and returns how many there were
func (s *Store) Purge() (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			removed++
			return nil
		})
		if err != nil {
			return err
		}
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err = tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	return removed, nil
}

func key(letter models.DeadLetter) []byte {
	return []byte(letter.FailedAt.UTC().Format("20060102T150405.000000000Z") + "/" + letter.Event.ID)
}
