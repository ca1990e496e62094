package repositories

import (
	"log/slog"
	"testing"
	"time"

	"file-renamer/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func record(name string, at time.Time, kind domain.ActivityKind) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:           uuid.New(),
		Kind:         kind,
		UserID:       42,
		ChatID:       42,
		OriginalName: name,
		NewName:      "renamed_" + name,
		Size:         3 * domain.MB,
		Duration:     1500 * time.Millisecond,
		At:           at,
	}
}

func Test_Store_And_List_Recent(t *testing.T) {
	req := require.New(t)
	repository := NewActivityRepository(openDB(t), slog.Default(), 0)
	at := time.Now().UTC().Truncate(time.Millisecond)
	records := []domain.ActivityRecord{
		record("a.pdf", at, domain.ActivitySucceeded),
		record("b.pdf", at.Add(time.Minute), domain.ActivityFailed),
		record("c.pdf", at.Add(2*time.Minute), domain.ActivitySucceeded),
	}
	for _, r := range records {
		req.NoError(repository.Store(r))
	}

	fetched, err := repository.ListRecent(0)

	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal(records[2], fetched[0])
	req.Equal(records[0], fetched[2])
}

func Test_List_Recent_With_Limit(t *testing.T) {
	req := require.New(t)
	repository := NewActivityRepository(openDB(t), slog.Default(), time.Hour)
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		req.NoError(repository.Store(record("f.bin", at.Add(time.Duration(i)*time.Second), domain.ActivitySucceeded)))
	}

	fetched, err := repository.ListRecent(2)

	req.NoError(err)
	req.Len(fetched, 2)
	req.True(fetched[0].At.After(fetched[1].At))
}

func Test_Stats(t *testing.T) {
	req := require.New(t)
	repository := NewActivityRepository(openDB(t), slog.Default(), 0)
	at := time.Now().UTC()

	req.NoError(repository.Store(record("a.mp4", at, domain.ActivitySucceeded)))
	req.NoError(repository.Store(record("b.mp4", at.Add(time.Second), domain.ActivitySucceeded)))
	req.NoError(repository.Store(record("c.mp4", at.Add(2*time.Second), domain.ActivityFailed)))

	stats, err := repository.Stats()
	req.NoError(err)
	req.Equal(ActivityStats{Total: 3, Succeeded: 2, Failed: 1, Bytes: 6 * domain.MB}, stats)
}
