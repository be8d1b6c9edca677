// Package store implements the encrypted-at-rest vault database. Every
// record is a sealed JSON payload in SQLite; only ids and a keyed tag-name
// MAC are stored in clear.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/docvault/internal/crypto"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/metrics"
	"github.com/TheMichaelB/docvault/internal/models"
)

// CurrentSchemaVersion is the only schema version this build opens.
const CurrentSchemaVersion = 1

const headerCheck = "docvault-header-v1"

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the vault database. Writes are serialized through
// WithTransaction; reads share a lock and see committed state only.
type Store struct {
	db      *sql.DB
	path    string
	engine  *crypto.Engine
	logger  *events.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	encKey []byte
	macKey []byte
	closed bool
}

// Open opens or creates the vault database at path. storageKey must be the
// 64-byte key from the key manager; a key that does not match the one the
// vault was created with fails with ErrWrongStorageKey. metrics may be nil.
func Open(ctx context.Context, path string, storageKey []byte, logger *events.Logger, m *metrics.Metrics) (*Store, error) {
	encKey, macKey, err := crypto.SplitStorageKey(storageKey)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", models.ErrStorage, err)
	}

	s := &Store{
		db:      db,
		path:    path,
		engine:  crypto.NewEngine(),
		logger:  logger.WithField("component", "vault_store"),
		metrics: m,
		encKey:  append([]byte(nil), encKey...),
		macKey:  append([]byte(nil), macKey...),
	}

	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.checkHeader(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.WithField("path", path).Debug("Vault store opened")
	return s, nil
}

// initialize creates tables and indexes.
func (s *Store) initialize(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS vault_header (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        schema_version INTEGER NOT NULL,
        check_blob BLOB NOT NULL,
        created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS documents (
        pk INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        payload BLOB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_documents_id ON documents(id);

    CREATE TABLE IF NOT EXISTS notes (
        pk INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        payload BLOB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_notes_id ON notes(id);

    CREATE TABLE IF NOT EXISTS chat_messages (
        pk INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        payload BLOB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_chat_messages_id ON chat_messages(id);

    CREATE TABLE IF NOT EXISTS tags (
        pk INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        name_mac BLOB NOT NULL UNIQUE,
        payload BLOB NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_tags_id ON tags(id);

    CREATE TABLE IF NOT EXISTS intents (
        id TEXT PRIMARY KEY,
        blob_ref TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL
    );
    `

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", models.ErrStorage, err)
	}
	return nil
}

// checkHeader writes the header of a new vault or verifies an existing one.
func (s *Store) checkHeader(ctx context.Context) error {
	var version int
	var check []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT schema_version, check_blob FROM vault_header WHERE id = 1").Scan(&version, &check)

	if errors.Is(err, sql.ErrNoRows) {
		sealed, err := s.engine.Seal([]byte(headerCheck), s.encKey, []byte("vault_header"))
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO vault_header (id, schema_version, check_blob) VALUES (1, ?, ?)",
			CurrentSchemaVersion, sealed)
		if err != nil {
			return fmt.Errorf("%w: write header: %v", models.ErrStorage, err)
		}
		s.logger.Info("Created vault store")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read header: %v", models.ErrStorage, err)
	}

	if version != CurrentSchemaVersion {
		return fmt.Errorf("%w: found %d, want %d", models.ErrSchemaVersion, version, CurrentSchemaVersion)
	}

	plain, err := s.engine.Open(check, s.encKey, []byte("vault_header"))
	if err != nil || string(plain) != headerCheck {
		return models.ErrWrongStorageKey
	}
	return nil
}

// Close releases the database and wipes the keys. Further calls fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	crypto.Wipe(s.encKey)
	crypto.Wipe(s.macKey)

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close database: %v", models.ErrStorage, err)
	}
	s.logger.Debug("Vault store closed")
	return nil
}

// WithTransaction runs fn inside an exclusive transaction. It commits when
// fn returns nil and rolls back otherwise. A panic in fn rolls back and is
// re-raised.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStoreClosed
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrStorage, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			s.observeTx("panic")
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			s.observeTx("rollback")
			s.logRollback(ctx, err)
			return
		}
		if err = sqlTx.Commit(); err != nil {
			err = fmt.Errorf("%w: commit: %v", models.ErrStorage, err)
			s.observeTx("rollback")
			s.logRollback(ctx, err)
			return
		}
		s.observeTx("commit")
	}()

	err = fn(&Tx{s: s, ctx: ctx, db: sqlTx})
	return err
}

// Get reads one record by id.
func (s *Store) Get(ctx context.Context, c models.Collection, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, models.ErrStoreClosed
	}
	return s.get(ctx, s.db, c, id)
}

// Query returns the records of c that match q, decrypted and sorted.
func (s *Store) Query(ctx context.Context, c models.Collection, q Query) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, models.ErrStoreClosed
	}
	return s.query(ctx, s.db, c, q)
}

// TagByName looks up a tag by its normalized name.
func (s *Store) TagByName(ctx context.Context, name string) (*models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, models.ErrStoreClosed
	}
	return s.tagByName(ctx, s.db, name)
}

// Count returns the number of records in c.
func (s *Store) Count(ctx context.Context, c models.Collection) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, models.ErrStoreClosed
	}
	table, err := tableFor(c)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", models.ErrStorage, c, err)
	}
	return n, nil
}

// Rekey re-seals every payload and the header under newStorageKey in one
// transaction. The store keeps working with the new key afterwards.
func (s *Store) Rekey(ctx context.Context, newStorageKey []byte) error {
	encKey, macKey, err := crypto.SplitStorageKey(newStorageKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStoreClosed
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrStorage, err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	next := &Store{engine: s.engine, encKey: encKey, macKey: macKey}
	for _, c := range models.Collections {
		records, err := s.all(ctx, sqlTx, c)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := next.put(ctx, sqlTx, c, rec); err != nil {
				return err
			}
		}
	}

	sealed, err := s.engine.Seal([]byte(headerCheck), encKey, []byte("vault_header"))
	if err != nil {
		return err
	}
	if _, err := sqlTx.ExecContext(ctx, "UPDATE vault_header SET check_blob = ? WHERE id = 1", sealed); err != nil {
		return fmt.Errorf("%w: update header: %v", models.ErrStorage, err)
	}

	if err := sqlTx.Commit(); err != nil {
		s.observeTx("rollback")
		return fmt.Errorf("%w: commit rekey: %v", models.ErrStorage, err)
	}
	s.observeTx("commit")

	crypto.Wipe(s.encKey)
	crypto.Wipe(s.macKey)
	s.encKey = append([]byte(nil), encKey...)
	s.macKey = append([]byte(nil), macKey...)

	s.logger.Info("Vault store rekeyed")
	return nil
}

// Intent is a blob written before its record committed.
type Intent struct {
	DocumentID string
	BlobRef    string
	CreatedAt  time.Time
}

// RecordIntent journals a blob before the record that owns it is written.
func (s *Store) RecordIntent(ctx context.Context, id, blobRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO intents (id, blob_ref, created_at) VALUES (?, ?, ?)",
		id, blobRef, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: record intent: %v", models.ErrStorage, err)
	}
	return nil
}

// PendingIntents lists intents whose record never committed, oldest first.
func (s *Store) PendingIntents(ctx context.Context) ([]Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, models.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, blob_ref, created_at FROM intents ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("%w: query intents: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	var intents []Intent
	for rows.Next() {
		var in Intent
		if err := rows.Scan(&in.DocumentID, &in.BlobRef, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan intent: %v", models.ErrStorage, err)
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate intents: %v", models.ErrStorage, err)
	}
	return intents, nil
}

// logRollback names the operation and document from ctx, when the caller
// tagged them.
func (s *Store) logRollback(ctx context.Context, err error) {
	logger := s.logger.WithError(err)
	if op := events.GetOperation(ctx); op != "" {
		logger = logger.WithField("op", op)
	}
	if id := events.GetDocumentID(ctx); id != "" {
		logger = logger.WithField("document_id", id)
	}
	logger.Debug("Transaction rolled back")
}

func (s *Store) observeTx(result string) {
	if s.metrics != nil {
		s.metrics.Transactions.WithLabelValues(result).Inc()
	}
}
