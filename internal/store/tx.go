package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TheMichaelB/docvault/internal/models"
)

// Tx is a write transaction. It is only valid inside the function passed to
// WithTransaction.
type Tx struct {
	s   *Store
	ctx context.Context
	db  *sql.Tx
}

// Context returns the transaction's context.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Get reads one record by id, including uncommitted writes of this Tx.
func (tx *Tx) Get(c models.Collection, id string) (models.Record, error) {
	return tx.s.get(tx.ctx, tx.db, c, id)
}

// Exists reports whether a record with id exists in c.
func (tx *Tx) Exists(c models.Collection, id string) (bool, error) {
	table, err := tableFor(c)
	if err != nil {
		return false, err
	}

	var n int
	if err := tx.db.QueryRowContext(tx.ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("%w: check %s: %v", models.ErrStorage, c, err)
	}
	return n > 0, nil
}

// Query is Store.Query inside the transaction.
func (tx *Tx) Query(c models.Collection, q Query) ([]models.Record, error) {
	return tx.s.query(tx.ctx, tx.db, c, q)
}

// Put inserts or replaces a record. Tag names must be unique.
func (tx *Tx) Put(rec models.Record) error {
	c, err := CollectionOf(rec)
	if err != nil {
		return err
	}
	return tx.s.put(tx.ctx, tx.db, c, rec)
}

// Delete removes a record and reports whether it existed.
func (tx *Tx) Delete(c models.Collection, id string) (bool, error) {
	table, err := tableFor(c)
	if err != nil {
		return false, err
	}

	res, err := tx.db.ExecContext(tx.ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("%w: delete %s %s: %v", models.ErrStorage, c, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: delete %s %s: %v", models.ErrStorage, c, id, err)
	}
	return n > 0, nil
}

// TagByName looks up a tag by name inside the transaction.
func (tx *Tx) TagByName(name string) (*models.Tag, error) {
	return tx.s.tagByName(tx.ctx, tx.db, name)
}

// ClearIntent drops the intent for a document whose record is being
// committed in this transaction.
func (tx *Tx) ClearIntent(id string) error {
	if _, err := tx.db.ExecContext(tx.ctx, "DELETE FROM intents WHERE id = ?", id); err != nil {
		return fmt.Errorf("%w: clear intent: %v", models.ErrStorage, err)
	}
	return nil
}
