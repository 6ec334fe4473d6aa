// Package sqlite is the sqlx-backed implementation of the calsync
// store.
package sqlite

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

// Ensure Repo implements the Store interface
var _ calsync.Store = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB

	// Column capabilities of the instances table, detected once per
	// connection (see instances.go).
	capsOnce sync.Once
	caps     instanceCaps
	capsErr  error
}

func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// instanceCaps records which optional columns the instances table
// actually has, so writes against a degraded schema skip them instead of
// failing.
type instanceCaps struct {
	columns map[string]bool
}

func (c instanceCaps) has(col string) bool {
	return c.columns[col]
}

func (r *Repo) capabilities(ctx context.Context) (instanceCaps, error) {
	r.capsOnce.Do(func() {
		var names []string
		if err := r.db.SelectContext(ctx, &names, `SELECT name FROM pragma_table_info('instances');`); err != nil {
			r.capsErr = err
			return
		}

		cols := make(map[string]bool, len(names))
		for _, name := range names {
			cols[name] = true
		}
		r.caps = instanceCaps{columns: cols}
	})

	return r.caps, r.capsErr
}
