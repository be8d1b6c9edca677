package store_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/store"
)

func storageKey(t *testing.T) []byte {
	master := make([]byte, crypto.KeySize)
	_, err := rand.Read(master)
	require.NoError(t, err)

	key, err := crypto.DeriveStorageKey(master)
	require.NoError(t, err)
	return key
}

func openStore(t *testing.T) (*store.Store, string, []byte) {
	path := filepath.Join(t.TempDir(), "vault.db")
	key := storageKey(t)

	s, err := store.Open(context.Background(), path, key, events.Discard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path, key
}

func note(id, title string, created time.Time) *models.Note {
	return &models.Note{ID: id, Title: title, Content: "body of " + title, CreatedAt: created, UpdatedAt: created}
}

func put(t *testing.T, s *store.Store, recs ...models.Record) {
	err := s.WithTransaction(context.Background(), func(tx *store.Tx) error {
		for _, rec := range recs {
			if err := tx.Put(rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpenChecksKey(t *testing.T) {
	ctx := context.Background()
	s, path, key := openStore(t)
	put(t, s, note("n1", "Groceries", time.Now()))
	require.NoError(t, s.Close())

	reopened, err := store.Open(ctx, path, key, events.Discard(), nil)
	require.NoError(t, err)
	rec, err := reopened.Get(ctx, models.CollectionNotes, "n1")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", rec.(*models.Note).Title)
	require.NoError(t, reopened.Close())

	_, err = store.Open(ctx, path, storageKey(t), events.Discard(), nil)
	assert.ErrorIs(t, err, models.ErrWrongStorageKey)
	assert.ErrorIs(t, err, models.ErrStorage)

	_, err = store.Open(ctx, path, key[:32], events.Discard(), nil)
	assert.Error(t, err)
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	ctx := context.Background()
	s, path, key := openStore(t)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE vault_header SET schema_version = 2 WHERE id = 1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = store.Open(ctx, path, key, events.Discard(), nil)
	assert.ErrorIs(t, err, models.ErrSchemaVersion)
}

func TestPayloadsAreEncryptedAtRest(t *testing.T) {
	s, path, _ := openStore(t)
	put(t, s, &models.Note{ID: "n1", Title: "Secret diagnosis", Content: "hospital visit"})
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var payload []byte
	require.NoError(t, db.QueryRow("SELECT payload FROM notes WHERE id = 'n1'").Scan(&payload))
	assert.False(t, bytes.Contains(payload, []byte("Secret")))
	assert.False(t, bytes.Contains(payload, []byte("hospital")))
}

func TestPayloadBoundToRow(t *testing.T) {
	ctx := context.Background()
	s, path, key := openStore(t)
	put(t, s, note("a", "A", time.Now()), note("b", "B", time.Now()))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE notes SET payload = (SELECT payload FROM notes WHERE id = 'a') WHERE id = 'b'")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := store.Open(ctx, path, key, events.Discard(), nil)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(ctx, models.CollectionNotes, "b")
	assert.ErrorIs(t, err, models.ErrTampered)
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "vault.db"), storageKey(t), events.Discard(), m)
	require.NoError(t, err)
	defer s.Close()

	t.Run("commit", func(t *testing.T) {
		put(t, s, note("n1", "One", time.Now()))
		_, err := s.Get(ctx, models.CollectionNotes, "n1")
		assert.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTransaction(ctx, func(tx *store.Tx) error {
			require.NoError(t, tx.Put(note("n2", "Two", time.Now())))
			_, err := tx.Get(models.CollectionNotes, "n2")
			require.NoError(t, err, "visible inside its own transaction")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, models.CollectionNotes, "n2")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("rollback on panic", func(t *testing.T) {
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = s.WithTransaction(ctx, func(tx *store.Tx) error {
				_ = tx.Put(note("n3", "Three", time.Now()))
				panic("kaboom")
			})
		})

		_, err := s.Get(ctx, models.CollectionNotes, "n3")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		var deleted, again bool
		err := s.WithTransaction(ctx, func(tx *store.Tx) error {
			var err error
			if deleted, err = tx.Delete(models.CollectionNotes, "n1"); err != nil {
				return err
			}
			again, err = tx.Delete(models.CollectionNotes, "n1")
			return err
		})
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.False(t, again)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transactions.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("rollback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transactions.WithLabelValues("panic")))
}

func TestRollbackLogsOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "vault.db"), storageKey(t), logger, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := events.WithOperation(events.WithDocumentID(context.Background(), "doc-7"), "ingest")
	err = s.WithTransaction(ctx, func(tx *store.Tx) error {
		return errors.New("boom")
	})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "Transaction rolled back")
	assert.Contains(t, out, `"op":"ingest"`)
	assert.Contains(t, out, `"document_id":"doc-7"`)
}

func TestTagNamesAreUnique(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openStore(t)
	put(t, s, &models.Tag{ID: "t1", Name: "medical", Color: models.TagColors[0]})

	err := s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Put(&models.Tag{ID: "t2", Name: " Medical ", Color: models.TagColors[1]})
	})
	assert.ErrorIs(t, err, models.ErrDuplicateTag)

	tag, err := s.TagByName(ctx, "MEDICAL")
	require.NoError(t, err)
	assert.Equal(t, "t1", tag.ID)

	_, err = s.TagByName(ctx, "legal")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Updating a tag keeps its own name.
	tag.DocumentCount = 3
	put(t, s, tag)
	n, err := s.Count(ctx, models.CollectionTags)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := base.AddDate(0, 2, 0)
	docs := []*models.Document{
		{ID: "d3", Title: "Passport", Type: models.TypePassport, BlobRef: "encrypted/d3.enc", Tags: []string{"personal"}, CreatedAt: base, UpdatedAt: base, ExpiryDate: &expiry},
		{ID: "d1", Title: "Electric bill", Type: models.TypeBill, BlobRef: "encrypted/d1.enc", Tags: []string{"financial"}, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)},
		{ID: "d2", Title: "Water Bill", Type: models.TypeBill, BlobRef: "encrypted/d2.enc", Tags: []string{"financial", "home"}, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour), IsArchived: true},
	}
	for _, d := range docs {
		put(t, s, d)
	}

	ids := func(recs []models.Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.RecordID()
		}
		return out
	}

	tests := []struct {
		name  string
		query store.Query
		want  []string
	}{
		{"all by id", store.Query{}, []string{"d1", "d2", "d3"}},
		{"equality", store.Query{Filters: []store.Filter{store.Eq("type", "BILL")}}, []string{"d1", "d2"}},
		{"bool equality", store.Query{Filters: []store.Filter{store.Eq("is_archived", false)}}, []string{"d1", "d3"}},
		{"substring", store.Query{Filters: []store.Filter{store.Contains("title", "BILL")}}, []string{"d1", "d2"}},
		{"list element", store.Query{Filters: []store.Filter{store.Eq("tags", "home")}}, []string{"d2"}},
		{"range", store.Query{Filters: []store.Filter{store.Range("expiry_date", base, base.AddDate(1, 0, 0))}}, []string{"d3"}},
		{"open range", store.Query{Filters: []store.Filter{store.Range("created_at", base.Add(time.Minute), nil)}}, []string{"d1", "d2"}},
		{"sort desc with id tie-break", store.Query{Sort: store.Sort{Field: "created_at", Desc: true}}, []string{"d1", "d2", "d3"}},
		{"sort asc", store.Query{Sort: store.Sort{Field: "created_at"}}, []string{"d3", "d1", "d2"}},
		{"missing values last", store.Query{Sort: store.Sort{Field: "expiry_date", Desc: true}}, []string{"d3", "d1", "d2"}},
		{"limit", store.Query{Sort: store.Sort{Field: "id", Desc: true}, Limit: 2}, []string{"d3", "d2"}},
		{"unknown field", store.Query{Filters: []store.Filter{store.Eq("colour", "red")}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, models.CollectionDocuments, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	_, err := s.Query(ctx, "widgets", store.Query{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestIntents(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openStore(t)

	require.NoError(t, s.RecordIntent(ctx, "d1", "encrypted/d1.enc"))
	require.NoError(t, s.RecordIntent(ctx, "d2", "encrypted/d2.enc"))

	pending, err := s.PendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "encrypted/d1.enc", pending[0].BlobRef)

	err = s.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.ClearIntent("d1")
	})
	require.NoError(t, err)

	pending, err = s.PendingIntents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d2", pending[0].DocumentID)
}

func TestRekey(t *testing.T) {
	ctx := context.Background()
	s, path, oldKey := openStore(t)
	put(t, s, note("n1", "Kept", time.Now()), &models.Tag{ID: "t1", Name: "work"})

	newKey := storageKey(t)
	require.NoError(t, s.Rekey(ctx, newKey))

	tag, err := s.TagByName(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, "t1", tag.ID)
	require.NoError(t, s.Close())

	_, err = store.Open(ctx, path, oldKey, events.Discard(), nil)
	assert.ErrorIs(t, err, models.ErrWrongStorageKey)

	reopened, err := store.Open(ctx, path, newKey, events.Discard(), nil)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, models.CollectionNotes, "n1")
	require.NoError(t, err)
	assert.Equal(t, "Kept", rec.(*models.Note).Title)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, models.CollectionNotes, "x")
	assert.ErrorIs(t, err, models.ErrStoreClosed)
	assert.ErrorIs(t, err, models.ErrState)

	_, err = s.Query(ctx, models.CollectionNotes, store.Query{})
	assert.ErrorIs(t, err, models.ErrStoreClosed)

	err = s.WithTransaction(ctx, func(*store.Tx) error { return nil })
	assert.ErrorIs(t, err, models.ErrStoreClosed)

	assert.ErrorIs(t, s.RecordIntent(ctx, "d", "r"), models.ErrStoreClosed)
	assert.ErrorIs(t, s.Rekey(ctx, storageKey(t)), models.ErrStoreClosed)
}

func TestConcurrentReadersSeeCommittedState(t *testing.T) {
	ctx := context.Background()
	s, _, _ := openStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				recs, err := s.Query(ctx, models.CollectionNotes, store.Query{})
				if !assert.NoError(t, err) {
					return
				}
				// Writers insert in pairs, so an odd count would be a torn read.
				assert.Equal(t, 0, len(recs)%2)
			}
		}()
	}

	for i := 0; i < 10; i++ {
		now := time.Now()
		put(t, s, note(string(rune('a'+i))+"1", "x", now), note(string(rune('a'+i))+"2", "y", now))
	}
	wg.Wait()
}
