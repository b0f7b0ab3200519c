package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/advanced-filters-api/internal/models"
)

const advancedFilterColumns = `f.id, f.title, f.created_by_id, f.created_at, f.url, f.is_heading, f.b64_query, f.model, f.model_name, f.sort_order,
	ARRAY(SELECT u.user_id::text FROM advanced_filter_users u WHERE u.filter_id = f.id ORDER BY u.user_id) AS user_ids,
	ARRAY(SELECT g.group_id::text FROM advanced_filter_groups g WHERE g.filter_id = f.id ORDER BY g.group_id) AS group_ids`

// Audience restricts reads to filters shared with a user directly or through a group.
// A nil audience reads every filter.
type Audience struct {
	UserID   string
	GroupIDs []string
}

// AdvancedFilterRepository persists saved filters and their sharing lists.
type AdvancedFilterRepository struct {
	db *sqlx.DB
}

// NewAdvancedFilterRepository creates a new AdvancedFilterRepository.
func NewAdvancedFilterRepository(db *sqlx.DB) *AdvancedFilterRepository {
	return &AdvancedFilterRepository{db: db}
}

func audienceClause(a *Audience, args []interface{}) (string, []interface{}) {
	if a == nil {
		return "", args
	}
	userArg := len(args) + 1
	groupArg := len(args) + 2
	groups := a.GroupIDs
	if groups == nil {
		groups = []string{}
	}
	clause := fmt.Sprintf("(f.id IN (SELECT filter_id FROM advanced_filter_users WHERE user_id::text = $%d) OR f.id IN (SELECT filter_id FROM advanced_filter_groups WHERE group_id::text = ANY($%d)))", userArg, groupArg)
	return clause, append(args, a.UserID, pq.Array(groups))
}

// FindByID returns a filter by identifier.
func (r *AdvancedFilterRepository) FindByID(ctx context.Context, id string) (*models.AdvancedFilter, error) {
	query := `SELECT ` + advancedFilterColumns + ` FROM advanced_filters f WHERE f.id = $1 LIMIT 1`
	var filter models.AdvancedFilter
	if err := r.db.GetContext(ctx, &filter, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find advanced filter: %w", err)
	}
	return &filter, nil
}

// IsVisible reports whether the filter is shared with the audience.
func (r *AdvancedFilterRepository) IsVisible(ctx context.Context, id string, audience *Audience) (bool, error) {
	clause, args := audienceClause(audience, []interface{}{id})
	query := `SELECT EXISTS(SELECT 1 FROM advanced_filters f WHERE f.id = $1`
	if clause != "" {
		query += " AND " + clause
	}
	query += ")"
	var visible bool
	if err := r.db.GetContext(ctx, &visible, query, args...); err != nil {
		return false, fmt.Errorf("check advanced filter visibility: %w", err)
	}
	return visible, nil
}

// List returns filters matching params together with the total count.
func (r *AdvancedFilterRepository) List(ctx context.Context, params models.AdvancedFilterListParams, audience *Audience) ([]models.AdvancedFilter, int, error) {
	var conditions []string
	var args []interface{}

	if clause, next := audienceClause(audience, args); clause != "" {
		conditions = append(conditions, clause)
		args = next
	}
	if params.ModelName != "" {
		conditions = append(conditions, fmt.Sprintf("f.model_name = $%d", len(args)+1))
		args = append(args, params.ModelName)
	}
	if params.Model != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(f.model) = LOWER($%d)", len(args)+1))
		args = append(args, params.Model)
	}
	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(f.title) LIKE $%d OR LOWER(f.model_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(params.Search)+"%")
	}
	orderBy := "f.sort_order ASC, f.created_at ASC"
	if params.AJAX {
		conditions = append(conditions, "f.is_heading = FALSE")
		orderBy = "f.model_name ASC, f.sort_order ASC"
	}

	baseQuery := "FROM advanced_filters f"
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", advancedFilterColumns, baseQuery, orderBy, pageSize, offset)
	var filters []models.AdvancedFilter
	if err := r.db.SelectContext(ctx, &filters, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list advanced filters: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count advanced filters: %w", err)
	}
	return filters, total, nil
}

// Lookups returns the menu entries of a model visible to the audience, in display order.
func (r *AdvancedFilterRepository) Lookups(ctx context.Context, model string, audience *Audience) ([]models.FilterChoice, error) {
	args := []interface{}{model}
	query := `SELECT f.id, f.title, f.is_heading FROM advanced_filters f WHERE LOWER(f.model) = LOWER($1)`
	if clause, next := audienceClause(audience, args); clause != "" {
		query += " AND " + clause
		args = next
	}
	query += " ORDER BY f.sort_order ASC, f.created_at ASC"

	var choices []models.FilterChoice
	if err := r.db.SelectContext(ctx, &choices, query, args...); err != nil {
		return nil, fmt.Errorf("list advanced filter lookups: %w", err)
	}
	return choices, nil
}

// NextOrder returns the position after the last filter of a model.
func (r *AdvancedFilterRepository) NextOrder(ctx context.Context, model string) (int, error) {
	const query = `SELECT COALESCE(MAX(sort_order) + 1, 0) FROM advanced_filters WHERE LOWER(model) = LOWER($1)`
	var next int
	if err := r.db.GetContext(ctx, &next, query, model); err != nil {
		return 0, fmt.Errorf("next advanced filter order: %w", err)
	}
	return next, nil
}

// Create inserts a filter and its sharing lists in one transaction.
func (r *AdvancedFilterRepository) Create(ctx context.Context, filter *models.AdvancedFilter) error {
	if filter.ID == "" {
		filter.ID = uuid.NewString()
	}
	if filter.CreatedAt.IsZero() {
		filter.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create advanced filter: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO advanced_filters (id, title, created_by_id, created_at, url, is_heading, b64_query, model, model_name, sort_order)
VALUES (:id, :title, :created_by_id, :created_at, :url, :is_heading, :b64_query, :model, :model_name, :sort_order)`
	if _, err = tx.NamedExecContext(ctx, query, filter); err != nil {
		return fmt.Errorf("create advanced filter: %w", err)
	}
	if err = replaceMembers(ctx, tx, filter); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create advanced filter: %w", err)
	}
	return nil
}

// Update stores the editable fields and sharing lists of a filter.
func (r *AdvancedFilterRepository) Update(ctx context.Context, filter *models.AdvancedFilter) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update advanced filter: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE advanced_filters SET title = :title, url = :url, is_heading = :is_heading, b64_query = :b64_query, sort_order = :sort_order WHERE id = :id`
	var res sql.Result
	if res, err = tx.NamedExecContext(ctx, query, filter); err != nil {
		return fmt.Errorf("update advanced filter: %w", err)
	}
	if affected, rowsErr := res.RowsAffected(); rowsErr == nil && affected == 0 {
		err = sql.ErrNoRows
		return err
	}
	if err = replaceMembers(ctx, tx, filter); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update advanced filter: %w", err)
	}
	return nil
}

func replaceMembers(ctx context.Context, tx *sqlx.Tx, filter *models.AdvancedFilter) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM advanced_filter_users WHERE filter_id = $1`, filter.ID); err != nil {
		return fmt.Errorf("clear advanced filter users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM advanced_filter_groups WHERE filter_id = $1`, filter.ID); err != nil {
		return fmt.Errorf("clear advanced filter groups: %w", err)
	}
	if len(filter.UserIDs) > 0 {
		const query = `INSERT INTO advanced_filter_users (filter_id, user_id) SELECT $1, unnest($2::uuid[])`
		if _, err := tx.ExecContext(ctx, query, filter.ID, pq.Array([]string(filter.UserIDs))); err != nil {
			return fmt.Errorf("store advanced filter users: %w", err)
		}
	}
	if len(filter.GroupIDs) > 0 {
		const query = `INSERT INTO advanced_filter_groups (filter_id, group_id) SELECT $1, unnest($2::uuid[])`
		if _, err := tx.ExecContext(ctx, query, filter.ID, pq.Array([]string(filter.GroupIDs))); err != nil {
			return fmt.Errorf("store advanced filter groups: %w", err)
		}
	}
	return nil
}

// Delete removes a filter. Sharing rows cascade.
func (r *AdvancedFilterRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM advanced_filters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete advanced filter: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reorder assigns new positions to filters of one model in a single transaction.
func (r *AdvancedFilterRepository) Reorder(ctx context.Context, model string, items []models.FilterOrder) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder advanced filters: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE advanced_filters SET sort_order = $1 WHERE id = $2 AND LOWER(model) = LOWER($3)`
	for _, item := range items {
		var res sql.Result
		if res, err = tx.ExecContext(ctx, query, item.Order, item.ID, model); err != nil {
			return fmt.Errorf("reorder advanced filter %s: %w", item.ID, err)
		}
		if affected, rowsErr := res.RowsAffected(); rowsErr == nil && affected == 0 {
			err = sql.ErrNoRows
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder advanced filters: %w", err)
	}
	return nil
}

// ListQueries returns every stored query, oldest first.
func (r *AdvancedFilterRepository) ListQueries(ctx context.Context) ([]models.AdvancedFilter, error) {
	const query = `SELECT id, title, b64_query, model FROM advanced_filters ORDER BY created_at ASC`
	var filters []models.AdvancedFilter
	if err := r.db.SelectContext(ctx, &filters, query); err != nil {
		return nil, fmt.Errorf("list advanced filter queries: %w", err)
	}
	return filters, nil
}

// UpdateQuery replaces the stored query of a filter.
func (r *AdvancedFilterRepository) UpdateQuery(ctx context.Context, id, encoded string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE advanced_filters SET b64_query = $2 WHERE id = $1`, id, encoded); err != nil {
		return fmt.Errorf("update advanced filter query: %w", err)
	}
	return nil
}

// BackfillModelNames derives model_name from model for every row that has one.
func (r *AdvancedFilterRepository) BackfillModelNames(ctx context.Context) (int64, error) {
	const query = `UPDATE advanced_filters SET model_name = COALESCE(NULLIF(split_part(model, '.', 2), ''), model) WHERE model IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("backfill model names: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backfill model names: %w", err)
	}
	return affected, nil
}
