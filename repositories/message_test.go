package repositories

import (
	"log/slog"
	"math"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) MessageLog {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMessageLog(db, slog.Default())
}

func Test_Append_Assigns_Strictly_Increasing_IDs(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	// When three messages are appended
	first, dup, err := repository.Append("alice", "hello", "a-1")
	req.NoError(err)
	req.False(dup)
	second, dup, err := repository.Append("bob", "hi there", "b-1")
	req.NoError(err)
	req.False(dup)
	third, dup, err := repository.Append("alice", "how are you", "a-2")
	req.NoError(err)
	req.False(dup)

	// Then IDs grow strictly
	req.Greater(second.ID, first.ID)
	req.Greater(third.ID, second.ID)
}

func Test_Append_Retry_Returns_Original(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	// Given a successfully persisted submission
	original, dup, err := repository.Append("alice", "hi", "offset-1")
	req.NoError(err)
	req.False(dup)

	// When the same client offset is retried
	retried, dup, err := repository.Append("alice", "hi", "offset-1")

	// Then nothing new is persisted and the original comes back
	req.NoError(err)
	req.True(dup)
	req.Equal(original.ID, retried.ID)
	req.Equal(original.Content, retried.Content)

	messages, err := repository.QuerySince(0)
	req.NoError(err)
	req.Len(messages, 1)
}

func Test_Append_Offset_Is_Globally_Unique(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	// Client offsets identify the submission, not the author: a retry under
	// a different author string (rename, session-id fallback) must still hit
	// the original
	first, dup, err := repository.Append("alice", "hi", "1")
	req.NoError(err)
	req.False(dup)

	retried, dup, err := repository.Append("bob", "hi", "1")
	req.NoError(err)
	req.True(dup)
	req.Equal(first.ID, retried.ID)

	messages, err := repository.QuerySince(0)
	req.NoError(err)
	req.Len(messages, 1)
}

func Test_Append_Without_Offset_Never_Dedups(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	// An absent client offset means every submission is treated as new
	first, dup, err := repository.Append("alice", "same text", "")
	req.NoError(err)
	req.False(dup)
	second, dup, err := repository.Append("alice", "same text", "")
	req.NoError(err)
	req.False(dup)
	req.Greater(second.ID, first.ID)
}

func Test_QuerySince_Is_Strictly_After_And_Ordered(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	var ids []uint64
	for _, content := range []string{"one", "two", "three", "four"} {
		message, _, err := repository.Append("alice", content, "")
		req.NoError(err)
		ids = append(ids, message.ID)
	}

	// When replaying from the second message
	messages, err := repository.QuerySince(ids[1])
	req.NoError(err)

	// Then only messages strictly after the offset come back, ascending
	req.Len(messages, 2)
	req.Equal(ids[2], messages[0].ID)
	req.Equal(ids[3], messages[1].ID)
}

func Test_QuerySince_Zero_Replays_Everything(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	for _, content := range []string{"one", "two", "three"} {
		_, _, err := repository.Append("bob", content, "")
		require.NoError(t, err)
	}

	messages, err := repository.QuerySince(0)
	req.NoError(err)
	req.Len(messages, 3)
}

func Test_QuerySince_Max_Offset_Returns_Nothing(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	for _, content := range []string{"one", "two"} {
		_, _, err := repository.Append("bob", content, "")
		require.NoError(t, err)
	}

	// A client declaring the highest possible offset has seen everything;
	// the seek must not wrap around and replay the full history
	messages, err := repository.QuerySince(math.MaxUint64)
	req.NoError(err)
	req.Empty(messages)
}

func Test_PurgeAll_Keeps_ID_Counter(t *testing.T) {
	req := require.New(t)
	repository := openTestLog(t)

	before, _, err := repository.Append("alice", "pre purge", "")
	req.NoError(err)

	// When history is purged
	req.NoError(repository.PurgeAll())

	messages, err := repository.QuerySince(0)
	req.NoError(err)
	req.Empty(messages)

	// Then IDs are still never reused
	after, _, err := repository.Append("alice", "post purge", "")
	req.NoError(err)
	req.Greater(after.ID, before.ID)
}
