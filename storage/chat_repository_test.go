package storage

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lanmeet/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func message(sender, text string, ts int64) domain.ChatMessage {
	return domain.ChatMessage{
		ID:          uuid.New(),
		Sender:      sender,
		Message:     text,
		TimestampMs: ts,
	}
}

func TestChatRepository_RecentIsChronological(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openTestDB(t), slog.Default())

	// Given messages appended out of timestamp order
	stored := []domain.ChatMessage{
		message("alice", "first", 1000),
		message("carol", "third", 3000),
		message("bob", "second", 2000),
	}
	for _, msg := range stored {
		req.NoError(repository.Append(msg))
	}

	// When the history is replayed
	fetched, err := repository.Recent(10)
	req.NoError(err)

	// Then messages come back oldest first regardless of insertion order
	req.Len(fetched, 3)
	req.Equal("first", fetched[0].Message)
	req.Equal("second", fetched[1].Message)
	req.Equal("third", fetched[2].Message)
}

func TestChatRepository_RecentKeepsNewestWhenCapped(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openTestDB(t), slog.Default())

	for i := int64(1); i <= 5; i++ {
		req.NoError(repository.Append(message("alice", "msg", i*1000)))
	}

	fetched, err := repository.Recent(2)
	req.NoError(err)

	// Then the cap discards the oldest entries, not the newest
	req.Len(fetched, 2)
	req.Equal(int64(4000), fetched[0].TimestampMs)
	req.Equal(int64(5000), fetched[1].TimestampMs)
}

func TestChatRepository_SameTimestampKeepsBothMessages(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openTestDB(t), slog.Default())

	// Given two messages landing on the same millisecond
	req.NoError(repository.Append(message("alice", "one", 1000)))
	req.NoError(repository.Append(message("bob", "two", 1000)))

	fetched, err := repository.Recent(10)
	req.NoError(err)
	req.Len(fetched, 2)
}

func TestChatRepository_RecentOnEmptyLog(t *testing.T) {
	req := require.New(t)
	repository := NewChatRepository(openTestDB(t), slog.Default())

	fetched, err := repository.Recent(10)
	req.NoError(err)
	req.Empty(fetched)
}
