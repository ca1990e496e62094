package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"file-renamer/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const activityPrefix = "activity:"

type IActivityRepository interface {
	Store(record domain.ActivityRecord) error
	ListRecent(limit int) ([]domain.ActivityRecord, error)
	Stats() (ActivityStats, error)
}

type ActivityStats struct {
	Total     int
	Succeeded int
	Failed    int
	// Bytes sums the sizes of succeeded runs.
	Bytes int64
}

type ActivityRepository struct {
	db  *badger.DB
	log *slog.Logger
	ttl time.Duration
}

// NewActivityRepository stores records for ttl; a zero ttl keeps them forever.
func NewActivityRepository(db *badger.DB, log *slog.Logger, ttl time.Duration) ActivityRepository {
	return ActivityRepository{db: db, log: log, ttl: ttl}
}

type DiskActivity struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	UserID       int64  `json:"user_id"`
	ChatID       int64  `json:"chat_id"`
	OriginalName string `json:"original_name"`
	NewName      string `json:"new_name,omitempty"`
	Size         int64  `json:"size"`
	DurationMs   int64  `json:"duration_ms"`
	Step         string `json:"step,omitempty"`
	Reason       string `json:"reason,omitempty"`
	At           int64  `json:"at"`
}

// Store persists a record under "activity:{timestamp_padded}:{uuid}" so a
// prefix scan returns records in chronological order.
func (r ActivityRepository) Store(record domain.ActivityRecord) error {
	key := activityKey(record)
	bytes, err := json.Marshal(lo.ToPtr(fromActivity(record)))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, bytes)
		if r.ttl > 0 {
			entry = entry.WithTTL(r.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// ListRecent returns at most limit records, newest first.
func (r ActivityRepository) ListRecent(limit int) ([]domain.ActivityRecord, error) {
	var disk []DiskActivity
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(activityPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(append(prefix, []byte("9999999999999999999")...)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(disk) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var d DiskActivity
				if err := json.Unmarshal(value, &d); err != nil {
					return err
				}
				disk = append(disk, d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(disk, func(d DiskActivity, _ int) domain.ActivityRecord {
		return toActivity(d)
	}), nil
}

// Stats aggregates every stored record.
func (r ActivityRepository) Stats() (ActivityStats, error) {
	var stats ActivityStats
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(activityPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var d DiskActivity
				if err := json.Unmarshal(value, &d); err != nil {
					return err
				}
				stats.Total++
				if domain.ActivityKind(d.Kind) == domain.ActivitySucceeded {
					stats.Succeeded++
					stats.Bytes += d.Size
				} else {
					stats.Failed++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}

func activityKey(record domain.ActivityRecord) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", activityPrefix, record.At.UnixNano(), record.ID))
}

func fromActivity(r domain.ActivityRecord) DiskActivity {
	return DiskActivity{
		ID:           r.ID.String(),
		Kind:         string(r.Kind),
		UserID:       int64(r.UserID),
		ChatID:       int64(r.ChatID),
		OriginalName: r.OriginalName,
		NewName:      r.NewName,
		Size:         r.Size,
		DurationMs:   r.Duration.Milliseconds(),
		Step:         r.Step,
		Reason:       r.Reason,
		At:           r.At.UnixNano(),
	}
}

func toActivity(d DiskActivity) domain.ActivityRecord {
	id, _ := uuid.Parse(d.ID)
	return domain.ActivityRecord{
		ID:           id,
		Kind:         domain.ActivityKind(d.Kind),
		UserID:       domain.UserID(d.UserID),
		ChatID:       domain.ChatID(d.ChatID),
		OriginalName: d.OriginalName,
		NewName:      d.NewName,
		Size:         d.Size,
		Duration:     time.Duration(d.DurationMs) * time.Millisecond,
		Step:         d.Step,
		Reason:       d.Reason,
		At:           time.Unix(0, d.At).UTC(),
	}
}
