package chat_test

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/chat"
	"github.com/TheMichaelB/docvault/internal/services/notes"
	"github.com/TheMichaelB/docvault/internal/services/tags"
	"github.com/TheMichaelB/docvault/internal/store"
	"github.com/TheMichaelB/docvault/test/testutil"
)

type fixture struct {
	chat  *chat.Service
	notes *notes.Service
	store *store.Store
	clock *testutil.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st := testutil.OpenTestStore(t, nil)
	noteSvc := notes.NewService(st, tags.NewService(st, events.Discard()), events.Discard())
	svc := chat.NewService(st, noteSvc, testutil.NewTestLogger())

	clock := testutil.NewFakeClock(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	svc.SetClock(clock.Now)
	noteSvc.SetClock(clock.Now)

	now := clock.Now()
	require.NoError(t, st.WithTransaction(testutil.TestContext(t), func(tx *store.Tx) error {
		return tx.Put(&models.Document{
			ID: "doc-1", Title: "Lease", Type: models.TypeContract, BlobRef: "encrypted/doc-1.enc",
			CreatedAt: now, UpdatedAt: now,
		})
	}))
	return &fixture{chat: svc, notes: noteSvc, store: st, clock: clock}
}

func TestPost(t *testing.T) {
	f := setup(t)
	ctx := testutil.TestContext(t)

	msg, err := f.chat.Post(ctx, "  lease renewal due in June ", []string{"doc-1", "doc-1", " "})
	require.NoError(t, err)
	assert.Equal(t, "lease renewal due in June", msg.Content)
	assert.Equal(t, []string{"doc-1"}, msg.Attachments)
	assert.Equal(t, f.clock.Now(), msg.Timestamp)
	assert.False(t, msg.IsNote)

	got, err := f.chat.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, got.Content)

	t.Run("rejected input", func(t *testing.T) {
		_, err := f.chat.Post(ctx, "   ", nil)
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = f.chat.Post(ctx, "see attachment", []string{"missing"})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Contains(t, err.Error(), "missing")

		n, err := f.store.Count(ctx, models.CollectionChat)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestList(t *testing.T) {
	f := setup(t)
	ctx := testutil.TestContext(t)

	old, err := f.chat.Post(ctx, "oldest", nil)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	var tied []string
	for _, content := range []string{"one", "two", "three"} {
		msg, err := f.chat.Post(ctx, content, nil)
		require.NoError(t, err)
		tied = append(tied, msg.ID)
	}
	sort.Strings(tied)

	msgs, err := f.chat.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, append(tied, old.ID), ids, "newest first, ties by id")

	limited, err := f.chat.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestConvertToNote(t *testing.T) {
	f := setup(t)
	ctx := testutil.TestContext(t)

	long := "Call the landlord about the lease renewal before the end of next month please"
	msg, err := f.chat.Post(ctx, long, []string{"doc-1"})
	require.NoError(t, err)

	note, err := f.chat.ConvertToNote(ctx, msg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, chat.Title(long), note.Title)
	assert.Len(t, []rune(note.Title), chat.TitleRunes)
	assert.Equal(t, long, note.Content)
	assert.Equal(t, []string{"doc-1"}, note.LinkedDocuments)

	got, err := f.chat.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsNote)
	assert.Equal(t, note.ID, got.NoteID)

	stored, err := f.notes.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.Title, stored.Title)

	t.Run("twice", func(t *testing.T) {
		_, err := f.chat.ConvertToNote(ctx, msg.ID, "again")
		assert.ErrorIs(t, err, models.ErrValidation)

		n, err := f.store.Count(ctx, models.CollectionNotes)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("explicit title", func(t *testing.T) {
		other, err := f.chat.Post(ctx, "short", nil)
		require.NoError(t, err)
		note, err := f.chat.ConvertToNote(ctx, other.ID, "Reminder")
		require.NoError(t, err)
		assert.Equal(t, "Reminder", note.Title)
	})

	t.Run("missing message", func(t *testing.T) {
		_, err := f.chat.ConvertToNote(ctx, "missing", "")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("deleting the note clears the mark", func(t *testing.T) {
		ok, err := f.notes.Delete(ctx, note.ID)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := f.chat.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, got.IsNote)
		assert.Empty(t, got.NoteID)
	})
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := testutil.TestContext(t)

	msg, err := f.chat.Post(ctx, "to be removed", nil)
	require.NoError(t, err)
	note, err := f.chat.ConvertToNote(ctx, msg.ID, "")
	require.NoError(t, err)

	ok, err := f.chat.Delete(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.chat.Delete(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.notes.Get(ctx, note.ID)
	assert.NoError(t, err, "the note outlives its message")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "a b c", chat.Title("  a\n b\tc "))
	assert.Equal(t, strings.Repeat("ü", 50), chat.Title(strings.Repeat("ü", 80)))
}
