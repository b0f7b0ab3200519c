package dto

import (
	"time"

	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// CreateAdvancedFilterRequest is the payload for saving a new filter.
type CreateAdvancedFilterRequest struct {
	Title     string     `json:"title" validate:"required,max=255"`
	URL       string     `json:"url" validate:"omitempty,max=255"`
	IsHeading bool       `json:"is_heading"`
	Query     *QueryNode `json:"query"`
	Order     *int       `json:"order" validate:"omitempty,gte=0"`
	Users     []string   `json:"users" validate:"omitempty,dive,uuid"`
	Groups    []string   `json:"groups" validate:"omitempty,dive,uuid"`
}

// UpdateAdvancedFilterRequest replaces the editable fields of a filter. The model and
// its derived name are never editable.
type UpdateAdvancedFilterRequest struct {
	Title     string     `json:"title" validate:"required,max=255"`
	URL       string     `json:"url" validate:"omitempty,max=255"`
	IsHeading bool       `json:"is_heading"`
	Query     *QueryNode `json:"query"`
	Order     *int       `json:"order" validate:"omitempty,gte=0"`
	Users     []string   `json:"users" validate:"omitempty,dive,uuid"`
	Groups    []string   `json:"groups" validate:"omitempty,dive,uuid"`
}

// ReorderAdvancedFiltersRequest assigns new positions to filters of one model.
type ReorderAdvancedFiltersRequest struct {
	Model string            `json:"model" validate:"required"`
	Items []FilterOrderItem `json:"items" validate:"required,min=1,dive"`
}

// FilterOrderItem is one row of a reorder request.
type FilterOrderItem struct {
	ID    string `json:"id" validate:"required,uuid"`
	Order int    `json:"order" validate:"gte=0"`
}

// AdvancedFilterResponse is the detail view of a saved filter.
type AdvancedFilterResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	CreatedByID string             `json:"created_by_id"`
	CreatedAt   time.Time          `json:"created_at"`
	URL         string             `json:"url"`
	IsHeading   bool               `json:"is_heading"`
	Model       string             `json:"model,omitempty"`
	ModelName   string             `json:"model_name,omitempty"`
	Order       int                `json:"order"`
	Users       []string           `json:"users"`
	Groups      []string           `json:"groups"`
	Query       *QueryNode         `json:"query,omitempty"`
	QueryError  string             `json:"query_error,omitempty"`
	Fields      []string           `json:"fields,omitempty"`
	FieldValues []query.FieldValue `json:"field_values,omitempty"`
	ModelURL    string             `json:"model_url,omitempty"`
	EditURL     string             `json:"edit_url"`
}

// AdvancedFilterMutation wraps the result of a write together with the follow-up the
// admin UI should perform.
type AdvancedFilterMutation struct {
	Filter   *AdvancedFilterResponse `json:"filter,omitempty"`
	Redirect string                  `json:"redirect,omitempty"`
	Popup    string                  `json:"popup,omitempty"`
	Message  string                  `json:"message,omitempty"`
}

// ChangelistChoice is a saved filter entry in a changelist menu.
type ChangelistChoice struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	IsHeading   bool   `json:"is_heading"`
	Selected    bool   `json:"selected"`
	QueryString string `json:"query_string"`
}

// ChangelistResponse is an entity listing with the saved filter menu.
type ChangelistResponse struct {
	Entity         string             `json:"entity"`
	Rows           []map[string]any   `json:"rows"`
	Choices        []ChangelistChoice `json:"choices"`
	CurrentAFilter string             `json:"current_afilter"`
	ClearURL       string             `json:"clear_url"`
	Active         bool               `json:"active"`
}

// ChangelistParams are the request inputs of a changelist.
type ChangelistParams struct {
	App      string
	Model    string
	AFilter  string
	Page     int
	PageSize int
}
