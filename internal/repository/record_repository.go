package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/advanced-filters-api/internal/collection"
)

// RecordRepository reads the rows of registered entities.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Fetch returns one page of the collection and its total size.
func (r *RecordRepository) Fetch(ctx context.Context, c collection.Collection, limit, offset int) ([]map[string]any, int, error) {
	switch coll := c.(type) {
	case *collection.SQL:
		return coll.Fetch(ctx, r.db, limit, offset)
	case *collection.Memory:
		rows := coll.Rows()
		total := len(rows)
		if offset >= total {
			return []map[string]any{}, total, nil
		}
		end := total
		if limit > 0 && offset+limit < total {
			end = offset + limit
		}
		return rows[offset:end], total, nil
	}
	return nil, 0, fmt.Errorf("fetch records: unsupported collection %T", c)
}
