package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/advanced-filters-api/internal/entity"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// SQL is a Collection over one entity table. Conditions carry "?" placeholders and are
// rebound to the driver's style when the query is built.
type SQL struct {
	entity   *entity.Entity
	conds    []string
	args     []any
	distinct bool
}

// NewSQL returns the unrestricted collection of an entity.
func NewSQL(e *entity.Entity) *SQL {
	return &SQL{entity: e}
}

// Entity returns the table the collection reads.
func (s *SQL) Entity() *entity.Entity { return s.entity }

func (s *SQL) clone() *SQL {
	return &SQL{
		entity:   s.entity,
		conds:    append([]string(nil), s.conds...),
		args:     append([]any(nil), s.args...),
		distinct: s.distinct,
	}
}

// Filter adds the compiled expression to the WHERE clause.
func (s *SQL) Filter(e query.Expression) (Collection, error) {
	c := &sqlCompiler{entity: s.entity}
	cond, err := c.build(e)
	if err != nil {
		return nil, err
	}
	out := s.clone()
	out.conds = append(out.conds, cond)
	out.args = append(out.args, c.args...)
	return out, nil
}

// Intersect merges the conditions of two collections over the same table.
func (s *SQL) Intersect(other Collection) (Collection, error) {
	o, ok := other.(*SQL)
	if !ok || o.entity.Table != s.entity.Table {
		return nil, ErrIncompatible
	}
	out := s.clone()
	out.conds = append(out.conds, o.conds...)
	out.args = append(out.args, o.args...)
	out.distinct = s.distinct || o.distinct
	return out, nil
}

// Distinct switches the select to SELECT DISTINCT.
func (s *SQL) Distinct() Collection {
	out := s.clone()
	out.distinct = true
	return out
}

// Where renders the combined condition, or an empty string when unrestricted.
func (s *SQL) Where() (string, []any) {
	if len(s.conds) == 0 {
		return "", nil
	}
	return strings.Join(s.conds, " AND "), append([]any(nil), s.args...)
}

// SelectQuery renders the paginated listing query with "?" placeholders.
func (s *SQL) SelectQuery(limit, offset int) (string, []any) {
	cols := make([]string, len(s.entity.Fields))
	for i, f := range s.entity.Fields {
		cols[i] = quoteIdent(f)
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quoteTable(s.entity.Table))
	where, args := s.Where()
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy(s.entity))
	if limit > 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, offset)
	}
	return b.String(), args
}

// CountQuery renders the row count for the current conditions.
func (s *SQL) CountQuery() (string, []any) {
	q := "SELECT COUNT(*) FROM " + quoteTable(s.entity.Table)
	where, args := s.Where()
	if where != "" {
		q += " WHERE " + where
	}
	return q, args
}

// Fetch runs the count and page queries. Byte slices are returned as strings.
func (s *SQL) Fetch(ctx context.Context, db *sqlx.DB, limit, offset int) ([]map[string]any, int, error) {
	countQuery, countArgs := s.CountQuery()
	var total int
	if err := db.GetContext(ctx, &total, db.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", s.entity.Label, err)
	}

	selectQuery, args := s.SelectQuery(limit, offset)
	rows, err := db.QueryxContext(ctx, db.Rebind(selectQuery), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", s.entity.Label, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any, len(s.entity.Fields))
		if err := rows.MapScan(row); err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", s.entity.Label, err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate %s: %w", s.entity.Label, err)
	}
	return out, total, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

func orderBy(e *entity.Entity) string {
	field, dir := e.Ordering, "ASC"
	if strings.HasPrefix(field, "-") {
		field, dir = field[1:], "DESC"
	}
	clause := quoteIdent(field) + " " + dir
	if field != e.PrimaryKey {
		clause += ", " + quoteIdent(e.PrimaryKey) + " " + dir
	}
	return clause
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type sqlCompiler struct {
	entity *entity.Entity
	args   []any
}

func (c *sqlCompiler) bind(v any) string {
	if d, ok := v.(query.Date); ok {
		v = d.String()
	}
	c.args = append(c.args, v)
	return "?"
}

func (c *sqlCompiler) build(e query.Expression) (string, error) {
	switch node := e.(type) {
	case *query.Leaf:
		return c.leaf(node)
	case *query.Combinator:
		if len(node.Children) == 0 {
			return "", fmt.Errorf("%w: empty group", ErrInvalidLookupValue)
		}
		parts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			part, err := c.build(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		cond := "(" + strings.Join(parts, " "+string(node.Connector)+" ") + ")"
		if node.Negated {
			cond = "NOT " + cond
		}
		return cond, nil
	}
	return "", fmt.Errorf("unsupported expression %T", e)
}

func (c *sqlCompiler) column(l *query.Leaf) (string, error) {
	if strings.Contains(l.Field, query.PathSeparator) || !c.entity.HasField(l.Field) {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedField, l.Field, c.entity.Label)
	}
	return quoteIdent(l.Field), nil
}

func (c *sqlCompiler) like(col string, pattern string, insensitive bool) string {
	if insensitive {
		return fmt.Sprintf("UPPER(%s::text) LIKE UPPER(%s)", col, c.bind(pattern))
	}
	return fmt.Sprintf("%s::text LIKE %s", col, c.bind(pattern))
}

func (c *sqlCompiler) leaf(l *query.Leaf) (string, error) {
	col, err := c.column(l)
	if err != nil {
		return "", err
	}
	text := func() string { return likeEscaper.Replace(fmt.Sprint(l.Value)) }
	switch l.Lookup {
	case query.LookupExact:
		if l.Value == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + c.bind(l.Value), nil
	case query.LookupIExact:
		return fmt.Sprintf("UPPER(%s::text) = UPPER(%s)", col, c.bind(fmt.Sprint(l.Value))), nil
	case query.LookupContains:
		return c.like(col, "%"+text()+"%", false), nil
	case query.LookupIContains:
		return c.like(col, "%"+text()+"%", true), nil
	case query.LookupStartsWith:
		return c.like(col, text()+"%", false), nil
	case query.LookupIStartsWith:
		return c.like(col, text()+"%", true), nil
	case query.LookupEndsWith:
		return c.like(col, "%"+text(), false), nil
	case query.LookupIEndsWith:
		return c.like(col, "%"+text(), true), nil
	case query.LookupIn:
		items, err := listValue(l.Value)
		if err != nil {
			return "", fmt.Errorf("%s__in: %w", l.Field, err)
		}
		marks := make([]string, 0, len(items))
		for _, item := range items {
			if item == nil {
				continue
			}
			marks = append(marks, c.bind(item))
		}
		if len(marks) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), nil
	case query.LookupGT:
		return col + " > " + c.bind(l.Value), nil
	case query.LookupGTE:
		return col + " >= " + c.bind(l.Value), nil
	case query.LookupLT:
		return col + " < " + c.bind(l.Value), nil
	case query.LookupLTE:
		return col + " <= " + c.bind(l.Value), nil
	case query.LookupRange:
		lo, hi, err := rangeBounds(l.Value)
		if err != nil {
			return "", fmt.Errorf("%s__range: %w", l.Field, err)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, c.bind(lo), c.bind(hi)), nil
	case query.LookupIsNull:
		isNull, ok := l.Value.(bool)
		if !ok {
			return "", fmt.Errorf("%s__isnull: %w", l.Field, ErrInvalidLookupValue)
		}
		if isNull {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	}
	return "", fmt.Errorf("unsupported lookup %q", l.Lookup)
}
