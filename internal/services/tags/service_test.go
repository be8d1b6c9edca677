package tags_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/services/tags"
	"github.com/TheMichaelB/docvault/internal/store"
	"github.com/TheMichaelB/docvault/test/testutil"
)

func apply(t *testing.T, st *store.Store, svc *tags.Service, before, after []string, kind tags.Kind) {
	err := st.WithTransaction(context.Background(), func(tx *store.Tx) error {
		return svc.Apply(tx, before, after, kind)
	})
	require.NoError(t, err)
}

func TestApplyMaintainsCounters(t *testing.T) {
	ctx := context.Background()
	st := testutil.OpenTestStore(t, nil)
	svc := tags.NewService(st, testutil.NewTestLogger())

	apply(t, st, svc, nil, []string{"Medical", "financial", "medical"}, tags.KindDocument)
	apply(t, st, svc, nil, []string{"medical"}, tags.KindNote)
	apply(t, st, svc, []string{"medical", "financial"}, []string{"financial", "legal"}, tags.KindDocument)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byName := map[string]*models.Tag{}
	for _, tag := range list {
		byName[tag.Name] = tag
	}
	assert.Equal(t, []string{"financial", "legal", "medical"}, []string{list[0].Name, list[1].Name, list[2].Name})
	assert.Equal(t, 1, byName["financial"].DocumentCount)
	assert.Equal(t, 1, byName["legal"].DocumentCount)
	assert.Equal(t, 0, byName["medical"].DocumentCount)
	assert.Equal(t, 1, byName["medical"].NoteCount)

	assert.Equal(t, models.TagColors[0], byName["medical"].Color)
	assert.Equal(t, models.TagColors[1], byName["financial"].Color)
	assert.Equal(t, models.TagColors[2], byName["legal"].Color)
}

func TestApplyNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	st := testutil.OpenTestStore(t, nil)
	svc := tags.NewService(st, testutil.NewTestLogger())

	apply(t, st, svc, []string{"ghost"}, nil, tags.KindDocument)
	_, err := svc.Get(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	apply(t, st, svc, nil, []string{"work"}, tags.KindNote)
	apply(t, st, svc, []string{"work"}, nil, tags.KindNote)
	apply(t, st, svc, []string{"work"}, nil, tags.KindNote)

	tag, err := svc.Get(ctx, "WORK")
	require.NoError(t, err)
	assert.Equal(t, 0, tag.NoteCount)
}

func TestSetColor(t *testing.T) {
	ctx := context.Background()
	st := testutil.OpenTestStore(t, nil)
	svc := tags.NewService(st, testutil.NewTestLogger())
	apply(t, st, svc, nil, []string{"legal"}, tags.KindDocument)

	require.NoError(t, svc.SetColor(ctx, "legal", "#123abc"))
	tag, err := svc.Get(ctx, "legal")
	require.NoError(t, err)
	assert.Equal(t, "#123abc", tag.Color)

	assert.ErrorIs(t, svc.SetColor(ctx, "legal", "red"), models.ErrValidation)
	assert.ErrorIs(t, svc.SetColor(ctx, "missing", "#000000"), models.ErrNotFound)
}

func TestRecount(t *testing.T) {
	ctx := context.Background()
	st := testutil.OpenTestStore(t, nil)
	svc := tags.NewService(st, testutil.NewTestLogger())

	err := st.WithTransaction(ctx, func(tx *store.Tx) error {
		if err := tx.Put(&models.Note{ID: "n1", Title: "a", Tags: []string{"work", "legal"}}); err != nil {
			return err
		}
		// Counter deliberately wrong.
		return tx.Put(&models.Tag{ID: "t1", Name: "work", Color: "#000000", NoteCount: 7})
	})
	require.NoError(t, err)

	findings, err := svc.Recount(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "work", findings[0].Ref)
	assert.Equal(t, "legal", findings[1].Ref)
	assert.ErrorIs(t, findings[0], models.ErrIntegrity)

	work, err := svc.Get(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, 1, work.NoteCount)

	legal, err := svc.Get(ctx, "legal")
	require.NoError(t, err)
	assert.Equal(t, 1, legal.NoteCount)

	findings, err = svc.Recount(ctx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
