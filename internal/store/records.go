package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/models"
)

func tableFor(c models.Collection) (string, error) {
	switch c {
	case models.CollectionDocuments, models.CollectionNotes, models.CollectionChat, models.CollectionTags:
		return string(c), nil
	default:
		return "", &models.ValidationError{Field: "collection", Reason: fmt.Sprintf("unknown collection %q", c)}
	}
}

// CollectionOf maps a record onto its collection.
func CollectionOf(rec models.Record) (models.Collection, error) {
	switch rec.(type) {
	case *models.Document:
		return models.CollectionDocuments, nil
	case *models.Note:
		return models.CollectionNotes, nil
	case *models.ChatMessage:
		return models.CollectionChat, nil
	case *models.Tag:
		return models.CollectionTags, nil
	default:
		return "", &models.ValidationError{Field: "record", Reason: fmt.Sprintf("unsupported record type %T", rec)}
	}
}

func aad(c models.Collection, id string) []byte {
	return []byte(string(c) + "/" + id)
}

func (s *Store) seal(c models.Collection, rec models.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s record: %v", models.ErrStorage, c, err)
	}
	defer crypto.Wipe(data)
	return s.engine.Seal(data, s.encKey, aad(c, rec.RecordID()))
}

func (s *Store) open(c models.Collection, id string, payload []byte) (models.Record, error) {
	data, err := s.engine.Open(payload, s.encKey, aad(c, id))
	if err != nil {
		return nil, &models.DecryptError{Ref: string(c) + "/" + id, Reason: "record payload", Err: err}
	}
	defer crypto.Wipe(data)

	rec, err := models.NewRecord(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, &models.IntegrityError{Kind: "corrupt_record", Ref: string(c) + "/" + id, Detail: err.Error()}
	}
	return rec, nil
}

func (s *Store) nameMAC(name string) []byte {
	return crypto.MAC(s.macKey, []byte(models.NormalizeTagName(name)))
}

func (s *Store) get(ctx context.Context, db dbtx, c models.Collection, id string) (models.Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, "SELECT payload FROM "+table+" WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", models.ErrNotFound, c, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", models.ErrStorage, c, err)
	}
	return s.open(c, id, payload)
}

func (s *Store) all(ctx context.Context, db dbtx, c models.Collection) ([]models.Record, error) {
	table, err := tableFor(c)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT id, payload FROM "+table+" ORDER BY pk")
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", models.ErrStorage, c, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan %s row: %v", models.ErrStorage, c, err)
		}
		rec, err := s.open(c, id, payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", models.ErrStorage, c, err)
	}
	return records, nil
}

func (s *Store) query(ctx context.Context, db dbtx, c models.Collection, q Query) ([]models.Record, error) {
	records, err := s.all(ctx, db, c)
	if err != nil {
		return nil, err
	}
	return q.Apply(records), nil
}

func (s *Store) put(ctx context.Context, db dbtx, c models.Collection, rec models.Record) error {
	payload, err := s.seal(c, rec)
	if err != nil {
		return err
	}

	if tag, ok := rec.(*models.Tag); ok {
		_, err = db.ExecContext(ctx, `
            INSERT INTO tags (id, name_mac, payload) VALUES (?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                name_mac = excluded.name_mac,
                payload = excluded.payload
        `, tag.ID, s.nameMAC(tag.Name), payload)
	} else {
		_, err = db.ExecContext(ctx, `
            INSERT INTO `+string(c)+` (id, payload) VALUES (?, ?)
            ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
        `, rec.RecordID(), payload)
	}

	var sqliteErr sqlite3.Error
	if c == models.CollectionTags && errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %s", models.ErrDuplicateTag, rec.RecordID())
	}
	if err != nil {
		return fmt.Errorf("%w: write %s %s: %v", models.ErrStorage, c, rec.RecordID(), err)
	}
	return nil
}

func (s *Store) tagByName(ctx context.Context, db dbtx, name string) (*models.Tag, error) {
	var id string
	var payload []byte
	err := db.QueryRowContext(ctx, "SELECT id, payload FROM tags WHERE name_mac = ?", s.nameMAC(name)).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tag %q", models.ErrNotFound, models.NormalizeTagName(name))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get tag: %v", models.ErrStorage, err)
	}

	rec, err := s.open(models.CollectionTags, id, payload)
	if err != nil {
		return nil, err
	}
	return rec.(*models.Tag), nil
}
