package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"lanmeet/domain"
)

// ChatRepository persists the meeting chat log in BadgerDB.
// The key is formatted as "chat:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message UUID as a collision
//     disconnector if two messages arrive at the same nanosecond.
type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewChatRepository(db *badger.DB, log *slog.Logger) ChatRepository {
	return ChatRepository{db: db, log: log}
}

const chatPrefix = "chat:"

// maxPaddedTimestamp seeks past every possible key during reverse iteration.
const maxPaddedTimestamp = "9999999999999999999"

// Append persists one chat message.
func (r ChatRepository) Append(msg domain.ChatMessage) error {
	key := fmt.Sprintf("%s%019d:%s", chatPrefix, msg.TimestampMs, msg.ID)
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Recent returns up to limit messages, oldest first. Thanks to the padded
// timestamp in the key the reverse prefix scan yields the newest entries,
// which are flipped back to chronological order before returning.
func (r ChatRepository) Recent(limit int) ([]domain.ChatMessage, error) {
	var raw [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(chatPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append([]byte(chatPrefix), []byte(maxPaddedTimestamp)...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				r.log.Debug(fmt.Sprintf("Chat replay capped at %d messages", limit))
				break
			}
			if err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(raw))
	for _, value := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal chat message: %w", err)
		}
		messages = append(messages, msg)
	}
	return lo.Reverse(messages), nil
}
