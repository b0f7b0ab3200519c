package service

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/internal/repository"
)

// FilterVisibility decides which saved filters a principal may see and edit.
type FilterVisibility struct {
	// EditByUser limits filters to the users and groups they are shared with.
	EditByUser bool
}

// VisibleTo returns the records shared with the principal, in input order.
func (v FilterVisibility) VisibleTo(p models.Principal, records []models.AdvancedFilter) []models.AdvancedFilter {
	if !v.EditByUser {
		return records
	}
	groups := mapset.NewThreadUnsafeSet(p.GroupIDs...)
	out := make([]models.AdvancedFilter, 0, len(records))
	for i := range records {
		if sharedWith(&records[i], p.UserID, groups) {
			out = append(out, records[i])
		}
	}
	return out
}

// CanEdit reports whether the principal may change or delete the record.
func (v FilterVisibility) CanEdit(p models.Principal, record *models.AdvancedFilter) bool {
	if p.IsSuperuser() || !v.EditByUser {
		return true
	}
	return sharedWith(record, p.UserID, mapset.NewThreadUnsafeSet(p.GroupIDs...))
}

// ListingAudience is the SQL form of the admin listing rule: superusers and
// unrestricted deployments see everything.
func (v FilterVisibility) ListingAudience(p models.Principal) *repository.Audience {
	if p.IsSuperuser() || !v.EditByUser {
		return nil
	}
	return &repository.Audience{UserID: p.UserID, GroupIDs: p.GroupIDs}
}

// MenuAudience is the SQL form of VisibleTo, used for changelist menus.
func (v FilterVisibility) MenuAudience(p models.Principal) *repository.Audience {
	if !v.EditByUser {
		return nil
	}
	return &repository.Audience{UserID: p.UserID, GroupIDs: p.GroupIDs}
}

func sharedWith(record *models.AdvancedFilter, userID string, groups mapset.Set[string]) bool {
	if record == nil {
		return false
	}
	if userID != "" && record.HasUser(userID) {
		return true
	}
	return groups.ContainsAny(record.GroupIDs...)
}
