//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_log.go -package=mocks
package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	msgPrefix   = "msg:"
	dedupPrefix = "dedup:"
	seqKey      = "seq"
)

var _ contract.IMessageLog = MessageLog{}

// MessageLog is the append-only ordered store of messages.
//
// Key layout in BadgerDB:
//   - "seq"                        -> 8-byte big-endian highest assigned ID
//   - "msg:{id 20-digit padded}"   -> JSON-encoded domain.Message
//   - "dedup:{client offset}"      -> 8-byte big-endian ID of the original
//
// The 20-digit zero padding keeps message keys in ascending ID order under
// Badger's lexicographic iteration, so a replay scan never has to sort.
type MessageLog struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageLog(db *badger.DB, log *slog.Logger) MessageLog {
	return MessageLog{db: db, log: log}
}

// Append persists a message with a freshly assigned ID strictly greater than
// every previously assigned one. The client offset is globally unique: when
// clientOffset is non-empty and was already seen, nothing is written and the
// ORIGINAL message is returned with duplicate=true. Keying on the offset
// alone keeps retries idempotent across renames and reconnects; the author
// string is display identity, never idempotency identity.
// Dedup check, counter bump, message write
// and dedup index write all happen in one transaction: either every effect
// is applied or none is, so an ambiguous failure always leaves the client
// free to retry with the same offset.
func (m MessageLog) Append(author, content, clientOffset string) (domain.Message, bool, error) {
	var (
		message   domain.Message
		duplicate bool
	)
	err := m.db.Update(func(txn *badger.Txn) error {
		if clientOffset != "" {
			original, found, err := lookupDedup(txn, clientOffset)
			if err != nil {
				return err
			}
			if found {
				message = original
				duplicate = true
				return nil
			}
		}

		id, err := nextID(txn)
		if err != nil {
			return err
		}

		message = domain.Message{
			ID:           id,
			Author:       author,
			Content:      content,
			ClientOffset: clientOffset,
			CreatedAt:    time.Now().UTC(),
		}
		value, err := json.Marshal(message)
		if err != nil {
			return err
		}
		if err = txn.Set(messageKey(id), value); err != nil {
			return err
		}
		if clientOffset != "" {
			return txn.Set(dedupKey(clientOffset), encodeID(id))
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("append failed: %w", err)
	}
	return message, duplicate, nil
}

// QuerySince returns every message with ID strictly greater than offset, in
// ascending ID order. Offset 0 means the entire history. Pure read; the
// dedup index is never touched here.
func (m MessageLog) QuerySince(offset uint64) ([]domain.Message, error) {
	// offset+1 below would wrap to zero and replay the whole history.
	if offset == math.MaxUint64 {
		return nil, nil
	}

	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(msgPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		// Strictly after: seek the first key past the declared offset.
		for it.Seek(messageKey(offset + 1)); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			})
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query since %d failed: %w", offset, err)
	}
	return messages, nil
}

// PurgeAll is an administrative operation: it clears the message history and
// the dedup index but keeps the ID counter, so IDs are never reused.
func (m MessageLog) PurgeAll() error {
	return m.db.DropPrefix([]byte(msgPrefix), []byte(dedupPrefix))
}

func lookupDedup(txn *badger.Txn, clientOffset string) (domain.Message, bool, error) {
	item, err := txn.Get(dedupKey(clientOffset))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	var id uint64
	if err = item.Value(func(value []byte) error {
		id = binary.BigEndian.Uint64(value)
		return nil
	}); err != nil {
		return domain.Message{}, false, err
	}

	original, err := txn.Get(messageKey(id))
	if err != nil {
		return domain.Message{}, false, err
	}
	var message domain.Message
	if err = original.Value(func(value []byte) error {
		return json.Unmarshal(value, &message)
	}); err != nil {
		return domain.Message{}, false, err
	}
	return message, true, nil
}

// nextID bumps the persisted counter. Only called inside the append
// transaction, itself serialized by the broker.
func nextID(txn *badger.Txn) (uint64, error) {
	var last uint64
	item, err := txn.Get([]byte(seqKey))
	switch err {
	case nil:
		if err = item.Value(func(value []byte) error {
			last = binary.BigEndian.Uint64(value)
			return nil
		}); err != nil {
			return 0, err
		}
	case badger.ErrKeyNotFound:
		last = 0
	default:
		return 0, err
	}

	next := last + 1
	if err = txn.Set([]byte(seqKey), encodeID(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func messageKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", msgPrefix, id))
}

func dedupKey(clientOffset string) []byte {
	return []byte(dedupPrefix + clientOffset)
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}
