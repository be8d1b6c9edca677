package notes_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/notes"
	"github.com/TheMichaelB/docvault/internal/services/tags"
	"github.com/TheMichaelB/docvault/internal/store"
	"github.com/TheMichaelB/docvault/test/testutil"
)

func setup(t *testing.T) (*notes.Service, *store.Store, *tags.Service) {
	t.Helper()
	st := testutil.OpenTestStore(t, nil)
	tagSvc := tags.NewService(st, events.Discard())
	svc := notes.NewService(st, tagSvc, testutil.NewTestLogger())

	clock := testutil.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	svc.SetClock(clock.Tick(time.Minute))
	return svc, st, tagSvc
}

func putDocument(t *testing.T, st *store.Store, id string) {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.WithTransaction(testutil.TestContext(t), func(tx *store.Tx) error {
		return tx.Put(&models.Document{
			ID: id, Title: id, Type: models.TypeOther, BlobRef: "encrypted/" + id + ".enc",
			CreatedAt: now, UpdatedAt: now,
		})
	}))
}

func mustGet(t *testing.T, svc *notes.Service, id string) *models.Note {
	t.Helper()
	n, err := svc.Get(testutil.TestContext(t), id)
	require.NoError(t, err)
	return n
}

func TestCreate(t *testing.T) {
	svc, st, tagSvc := setup(t)
	ctx := testutil.TestContext(t)
	putDocument(t, st, "doc-1")

	a, err := svc.Create(ctx, notes.CreateRequest{Title: " Trip ", Content: "Bring passport", Tags: []string{"Travel"}})
	require.NoError(t, err)
	assert.Equal(t, "Trip", a.Title)
	assert.Equal(t, []string{"travel"}, a.Tags)

	b, err := svc.Create(ctx, notes.CreateRequest{
		Title:           "Visa",
		LinkedDocuments: []string{"doc-1", "doc-1"},
		LinkedNotes:     []string{a.ID},
		Tags:            []string{"travel", "work"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, b.LinkedDocuments)
	assert.Equal(t, []string{a.ID}, b.LinkedNotes)

	t.Run("links are mirrored", func(t *testing.T) {
		got := mustGet(t, svc, a.ID)
		assert.Equal(t, []string{b.ID}, got.LinkedNotes)
		assert.True(t, got.UpdatedAt.After(a.UpdatedAt))
	})

	t.Run("tag counters", func(t *testing.T) {
		travel, err := tagSvc.Get(ctx, "travel")
		require.NoError(t, err)
		assert.Equal(t, 2, travel.NoteCount)
		assert.Zero(t, travel.DocumentCount)
	})

	t.Run("rejected input", func(t *testing.T) {
		tests := []struct {
			name string
			req  notes.CreateRequest
		}{
			{"blank title", notes.CreateRequest{Title: "  "}},
			{"missing document", notes.CreateRequest{Title: "x", LinkedDocuments: []string{"nope"}}},
			{"missing note", notes.CreateRequest{Title: "x", LinkedNotes: []string{"nope"}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.Create(ctx, tt.req)
				assert.ErrorIs(t, err, models.ErrValidation)
			})
		}

		n, err := st.Count(ctx, models.CollectionNotes)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestUpdate(t *testing.T) {
	svc, _, tagSvc := setup(t)
	ctx := testutil.TestContext(t)

	a, err := svc.Create(ctx, notes.CreateRequest{Title: "A"})
	require.NoError(t, err)
	c, err := svc.Create(ctx, notes.CreateRequest{Title: "C"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, notes.CreateRequest{Title: "B", LinkedNotes: []string{a.ID}, Tags: []string{"old"}})
	require.NoError(t, err)

	content := "updated"
	links := []string{c.ID}
	newTags := []string{"new"}
	ok, err := svc.Update(ctx, b.ID, notes.Patch{Content: &content, LinkedNotes: &links, Tags: &newTags})
	require.NoError(t, err)
	assert.True(t, ok)

	got := mustGet(t, svc, b.ID)
	assert.Equal(t, "updated", got.Content)
	assert.Equal(t, []string{c.ID}, got.LinkedNotes)
	assert.True(t, got.UpdatedAt.After(b.UpdatedAt))

	assert.Empty(t, mustGet(t, svc, a.ID).LinkedNotes)
	assert.Equal(t, []string{b.ID}, mustGet(t, svc, c.ID).LinkedNotes)

	old, err := tagSvc.Get(ctx, "old")
	require.NoError(t, err)
	assert.Zero(t, old.NoteCount)
	fresh, err := tagSvc.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.NoteCount)

	t.Run("id change rejected", func(t *testing.T) {
		other := a.ID
		ok, err := svc.Update(ctx, b.ID, notes.Patch{ID: &other})
		assert.False(t, ok)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("self link rejected", func(t *testing.T) {
		self := []string{b.ID}
		_, err := svc.Update(ctx, b.ID, notes.Patch{LinkedNotes: &self})
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Equal(t, []string{c.ID}, mustGet(t, svc, b.ID).LinkedNotes)
	})

	t.Run("missing note", func(t *testing.T) {
		ok, err := svc.Update(ctx, "missing", notes.Patch{Content: &content})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLinkUnlink(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := testutil.TestContext(t)

	a, err := svc.Create(ctx, notes.CreateRequest{Title: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, notes.CreateRequest{Title: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.Link(ctx, a.ID, b.ID))
	require.NoError(t, svc.Link(ctx, b.ID, a.ID), "linking twice is a no-op")
	assert.Equal(t, []string{b.ID}, mustGet(t, svc, a.ID).LinkedNotes)
	assert.Equal(t, []string{a.ID}, mustGet(t, svc, b.ID).LinkedNotes)

	require.NoError(t, svc.Unlink(ctx, b.ID, a.ID))
	assert.Empty(t, mustGet(t, svc, a.ID).LinkedNotes)
	assert.Empty(t, mustGet(t, svc, b.ID).LinkedNotes)

	assert.ErrorIs(t, svc.Link(ctx, a.ID, a.ID), models.ErrValidation)
	assert.ErrorIs(t, svc.Link(ctx, a.ID, "missing"), models.ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, st, tagSvc := setup(t)
	ctx := testutil.TestContext(t)

	a, err := svc.Create(ctx, notes.CreateRequest{Title: "A"})
	require.NoError(t, err)
	c, err := svc.Create(ctx, notes.CreateRequest{Title: "C"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, notes.CreateRequest{Title: "B", LinkedNotes: []string{a.ID, c.ID}, Tags: []string{"gone"}})
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Put(&models.ChatMessage{ID: "m1", Content: "B", IsNote: true, NoteID: b.ID, Timestamp: now})
	}))

	ok, err := svc.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Get(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, mustGet(t, svc, a.ID).LinkedNotes)
	assert.Empty(t, mustGet(t, svc, c.ID).LinkedNotes)

	rec, err := st.Get(ctx, models.CollectionChat, "m1")
	require.NoError(t, err)
	msg := rec.(*models.ChatMessage)
	assert.False(t, msg.IsNote)
	assert.Empty(t, msg.NoteID)

	tag, err := tagSvc.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Zero(t, tag.NoteCount)

	ok, err = svc.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestList(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := testutil.TestContext(t)
	putDocument(t, st, "doc-1")

	first, err := svc.Create(ctx, notes.CreateRequest{Title: "First", Tags: []string{"home"}})
	require.NoError(t, err)
	second, err := svc.Create(ctx, notes.CreateRequest{Title: "Second", LinkedDocuments: []string{"doc-1"}, IsFavorite: true})
	require.NoError(t, err)

	all, err := svc.List(ctx, notes.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	content := "touched"
	_, err = svc.Update(ctx, first.ID, notes.Patch{Content: &content})
	require.NoError(t, err)

	all, err = svc.List(ctx, notes.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, all[0].ID, "most recently updated first")

	tests := []struct {
		name string
		opts notes.ListOptions
		want string
	}{
		{"by tag", notes.ListOptions{Tag: "HOME"}, first.ID},
		{"favorites", notes.ListOptions{FavoritesOnly: true}, second.ID},
		{"linked document", notes.ListOptions{LinkedDocument: "doc-1"}, second.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(ctx, tt.opts)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].ID)
		})
	}
}
