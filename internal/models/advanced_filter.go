package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// AdvancedFilter is a saved, named filter for one entity's changelist.
type AdvancedFilter struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	CreatedByID string         `db:"created_by_id" json:"created_by_id"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	URL         string         `db:"url" json:"url"`
	IsHeading   bool           `db:"is_heading" json:"is_heading"`
	B64Query    string         `db:"b64_query" json:"b64_query"`
	Model       *string        `db:"model" json:"model,omitempty"`
	ModelName   *string        `db:"model_name" json:"model_name,omitempty"`
	Order       int            `db:"sort_order" json:"order"`
	UserIDs     pq.StringArray `db:"user_ids" json:"users"`
	GroupIDs    pq.StringArray `db:"group_ids" json:"groups"`
}

// String mirrors how filters are labelled in menus.
func (f *AdvancedFilter) String() string {
	return fmt.Sprintf("%s / %s", deref(f.ModelName), f.Title)
}

// ModelLabel returns the "app.Model" reference or an empty string.
func (f *AdvancedFilter) ModelLabel() string {
	return deref(f.Model)
}

// Query decodes the stored query. It returns nil without error when none is stored.
func (f *AdvancedFilter) Query() (query.Expression, error) {
	if f.B64Query == "" {
		return nil, nil
	}
	return query.Decode(f.B64Query)
}

// SetQuery encodes expr with s, or the default codec when s is nil.
func (f *AdvancedFilter) SetQuery(s *query.Serializer, expr query.Expression) error {
	var (
		encoded string
		err     error
	)
	if s == nil {
		encoded, err = query.Encode(expr)
	} else {
		encoded, err = s.Encode(expr)
	}
	if err != nil {
		return err
	}
	f.B64Query = encoded
	return nil
}

// ListFields returns the field paths referenced by the stored query.
func (f *AdvancedFilter) ListFields() ([]string, error) {
	if f.B64Query == "" {
		return nil, nil
	}
	return query.ListFields(f.B64Query)
}

// HasUser reports whether userID is listed on the filter.
func (f *AdvancedFilter) HasUser(userID string) bool {
	for _, id := range f.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AdvancedFilterListParams narrows the filter listing.
type AdvancedFilterListParams struct {
	Search    string
	ModelName string
	Model     string
	// AJAX excludes heading rows and orders by model name first.
	AJAX     bool
	Page     int
	PageSize int
}

// FilterChoice is an entry in a changelist's saved filter menu.
type FilterChoice struct {
	ID        string `db:"id" json:"id"`
	Title     string `db:"title" json:"title"`
	IsHeading bool   `db:"is_heading" json:"is_heading"`
}

// FilterOrder assigns a position to one filter.
type FilterOrder struct {
	ID    string `json:"id" validate:"required,uuid"`
	Order int    `json:"order" validate:"gte=0"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
