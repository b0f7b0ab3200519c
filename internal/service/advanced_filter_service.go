package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/advanced-filters-api/internal/collection"
	"github.com/noah-isme/advanced-filters-api/internal/dto"
	"github.com/noah-isme/advanced-filters-api/internal/entity"
	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/internal/repository"
	appErrors "github.com/noah-isme/advanced-filters-api/pkg/errors"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// AFilterParam is the changelist query parameter selecting a saved filter.
const AFilterParam = "_afilter"

const (
	lookupCachePrefix = "advanced_filters:lookups:"
	auditResource     = "advanced_filters"
	auditSource       = "api"
	defaultChangelist = 100
	maxChangelistPage = 500
	popupIframe       = "iframe"
)

type advancedFilterRepository interface {
	FindByID(ctx context.Context, id string) (*models.AdvancedFilter, error)
	IsVisible(ctx context.Context, id string, audience *repository.Audience) (bool, error)
	List(ctx context.Context, params models.AdvancedFilterListParams, audience *repository.Audience) ([]models.AdvancedFilter, int, error)
	Lookups(ctx context.Context, model string, audience *repository.Audience) ([]models.FilterChoice, error)
	NextOrder(ctx context.Context, model string) (int, error)
	Create(ctx context.Context, filter *models.AdvancedFilter) error
	Update(ctx context.Context, filter *models.AdvancedFilter) error
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, model string, items []models.FilterOrder) error
}

type filterUserRepository interface {
	GroupIDs(ctx context.Context, userID string) ([]string, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type entityResolver interface {
	Resolve(label string) (*entity.Entity, error)
	ResolvePath(app, model string) (*entity.Entity, error)
}

type recordReader interface {
	Fetch(ctx context.Context, c collection.Collection, limit, offset int) ([]map[string]any, int, error)
}

// AdvancedFilterConfig carries the settings of the saved filter service.
type AdvancedFilterConfig struct {
	EditByUser     bool
	QueryFormat    query.Format
	MaxQueryLength int
	APIPrefix      string
}

// AdvancedFilterService implements saved filter management and changelist filtering.
type AdvancedFilterService struct {
	repo       advancedFilterRepository
	users      filterUserRepository
	entities   entityResolver
	records    recordReader
	applier    *FilterApplier
	cache      *CacheService
	serializer *query.Serializer
	visibility FilterVisibility
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *MetricsService
	config     AdvancedFilterConfig
}

// NewAdvancedFilterService wires the saved filter service.
func NewAdvancedFilterService(
	repo advancedFilterRepository,
	users filterUserRepository,
	entities entityResolver,
	records recordReader,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg AdvancedFilterConfig,
) *AdvancedFilterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2048
	}
	return &AdvancedFilterService{
		repo:       repo,
		users:      users,
		entities:   entities,
		records:    records,
		applier:    NewFilterApplier(logger, metrics),
		cache:      cache,
		serializer: query.NewSerializer(cfg.QueryFormat),
		visibility: FilterVisibility{EditByUser: cfg.EditByUser},
		validator:  validate,
		logger:     logger,
		metrics:    metrics,
		config:     cfg,
	}
}

// ResolvePrincipal turns token claims into a principal with database group memberships.
func (s *AdvancedFilterService) ResolvePrincipal(ctx context.Context, claims *models.JWTClaims) (models.Principal, error) {
	if claims == nil {
		return models.Principal{}, appErrors.ErrUnauthorized
	}
	groups, err := s.users.GroupIDs(ctx, claims.UserID)
	if err != nil {
		return models.Principal{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user groups")
	}
	return claims.Principal(groups...), nil
}

// List returns the filters the principal may manage.
func (s *AdvancedFilterService) List(ctx context.Context, actor models.Principal, params models.AdvancedFilterListParams) ([]dto.AdvancedFilterResponse, *models.Pagination, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 || params.PageSize > 100 {
		params.PageSize = 20
	}
	filters, total, err := s.repo.List(ctx, params, s.visibility.ListingAudience(actor))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list advanced filters")
	}
	out := make([]dto.AdvancedFilterResponse, 0, len(filters))
	for i := range filters {
		out = append(out, s.summary(&filters[i]))
	}
	return out, &models.Pagination{Page: params.Page, PageSize: params.PageSize, TotalCount: total}, nil
}

// Get returns one filter with its decoded query. popup selects the reduced iframe view.
func (s *AdvancedFilterService) Get(ctx context.Context, actor models.Principal, id, popup string) (*dto.AdvancedFilterResponse, error) {
	filter, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	resp := s.detail(filter)
	if popup == popupIframe {
		resp.Model, resp.ModelName, resp.ModelURL = "", "", ""
	}
	return resp, nil
}

// Create saves a new filter for the given "app.Model". Adding without a model is not
// permitted.
func (s *AdvancedFilterService) Create(ctx context.Context, actor models.Principal, model string, req dto.CreateAdvancedFilterRequest) (*dto.AdvancedFilterResponse, error) {
	if strings.TrimSpace(model) == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "a model is required to add an advanced filter")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advanced filter payload")
	}
	target, err := s.entities.Resolve(model)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown model")
	}

	label, modelName := target.Label, target.ModelName()
	filter := &models.AdvancedFilter{
		Title:       strings.TrimSpace(req.Title),
		CreatedByID: actor.UserID,
		URL:         req.URL,
		IsHeading:   req.IsHeading,
		Model:       &label,
		ModelName:   &modelName,
		UserIDs:     withMember(req.Users, actor.UserID),
		GroupIDs:    req.Groups,
	}
	if filter.URL == "" {
		filter.URL = target.ChangelistPath()
	}
	if err := s.setQuery(filter, target, req.Query); err != nil {
		return nil, err
	}
	if req.Order != nil {
		filter.Order = *req.Order
	} else {
		next, err := s.repo.NextOrder(ctx, label)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute filter order")
		}
		filter.Order = next
	}

	if err := s.repo.Create(ctx, filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create advanced filter")
	}
	s.audit(ctx, actor, models.AuditActionFilterCreate, filter)
	s.invalidateLookups(ctx, label)
	return s.detail(filter), nil
}

// Update replaces the editable fields of a filter.
func (s *AdvancedFilterService) Update(ctx context.Context, actor models.Principal, id string, req dto.UpdateAdvancedFilterRequest) (*dto.AdvancedFilterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advanced filter payload")
	}
	filter, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	target, err := s.entities.Resolve(filter.ModelLabel())
	if err != nil {
		s.logger.Error("advanced filter references an unknown model", zap.String("filter_id", filter.ID), zap.String("model", filter.ModelLabel()), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrConfiguration.Code, appErrors.ErrConfiguration.Status, "advanced filter references an unknown model")
	}

	filter.Title = strings.TrimSpace(req.Title)
	filter.IsHeading = req.IsHeading
	if req.URL != "" {
		filter.URL = req.URL
	}
	if req.Order != nil {
		filter.Order = *req.Order
	}
	filter.UserIDs = req.Users
	filter.GroupIDs = req.Groups
	if req.Query != nil {
		if err := s.setQuery(filter, target, req.Query); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, filter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "advanced filter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update advanced filter")
	}
	s.audit(ctx, actor, models.AuditActionFilterUpdate, filter)
	s.invalidateLookups(ctx, filter.ModelLabel())
	return s.detail(filter), nil
}

// Delete removes a filter the principal may edit.
func (s *AdvancedFilterService) Delete(ctx context.Context, actor models.Principal, id string) error {
	filter, err := s.editable(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, filter.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "advanced filter not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete advanced filter")
	}
	s.audit(ctx, actor, models.AuditActionFilterDelete, filter)
	s.invalidateLookups(ctx, filter.ModelLabel())
	return nil
}

// Reorder assigns new menu positions to filters of one model.
func (s *AdvancedFilterService) Reorder(ctx context.Context, actor models.Principal, req dto.ReorderAdvancedFiltersRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}
	target, err := s.entities.Resolve(req.Model)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown model")
	}

	audience := s.visibility.ListingAudience(actor)
	items := make([]models.FilterOrder, 0, len(req.Items))
	for _, item := range req.Items {
		if audience != nil {
			visible, err := s.repo.IsVisible(ctx, item.ID, audience)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check advanced filter")
			}
			if !visible {
				return appErrors.Clone(appErrors.ErrForbidden, "advanced filter cannot be reordered by this user")
			}
		}
		items = append(items, models.FilterOrder{ID: item.ID, Order: item.Order})
	}

	if err := s.repo.Reorder(ctx, target.Label, items); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "advanced filter not found for this model")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder advanced filters")
	}
	s.audit(ctx, actor, models.AuditActionFilterReorder, &models.AdvancedFilter{Model: &target.Label})
	s.invalidateLookups(ctx, target.Label)
	return nil
}

// Lookups returns the saved filter menu of an entity for the principal. The boolean
// reports a cache hit.
func (s *AdvancedFilterService) Lookups(ctx context.Context, actor models.Principal, app, model string) ([]models.FilterChoice, bool, error) {
	target, err := s.entities.ResolvePath(app, model)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "unknown entity")
	}
	return s.lookups(ctx, actor, target)
}

func (s *AdvancedFilterService) lookups(ctx context.Context, actor models.Principal, target *entity.Entity) ([]models.FilterChoice, bool, error) {
	audience := s.visibility.MenuAudience(actor)
	choices, hit, err := Remember(ctx, s.cache, lookupCacheKey(target.Label, audience), func(ctx context.Context) ([]models.FilterChoice, error) {
		return s.repo.Lookups(ctx, target.Label, audience)
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load advanced filter choices")
	}
	return choices, hit, nil
}

// Changelist lists the rows of an entity, narrowed by the saved filter named in the
// _afilter parameter. A missing or broken filter never fails the listing.
func (s *AdvancedFilterService) Changelist(ctx context.Context, actor models.Principal, params dto.ChangelistParams, raw url.Values) (*dto.ChangelistResponse, *models.Pagination, error) {
	target, err := s.entities.ResolvePath(params.App, params.Model)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "unknown entity")
	}

	var base collection.Collection = collection.NewSQL(target)
	rows := base
	current := ""
	_, active := raw[AFilterParam]
	if active && params.AFilter != "" {
		filter := s.selectedFilter(ctx, target, params.AFilter)
		if filter != nil {
			current = filter.ID
			if filter.ModelLabel() != "" && strings.EqualFold(filter.ModelLabel(), target.Label) {
				rows = s.applier.Apply(ctx, filter, base)
			} else {
				s.logger.Error("saved filter belongs to another model",
					zap.String("filter_id", filter.ID),
					zap.String("filter_model", filter.ModelLabel()),
					zap.String("model", target.Label))
				s.metrics.RecordApply(ApplyOutcomeWrongModel, 0)
			}
		}
	} else {
		s.metrics.RecordApply(ApplyOutcomeNone, 0)
	}

	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultChangelist
	}
	if pageSize > maxChangelistPage {
		pageSize = maxChangelistPage
	}
	offset := (page - 1) * pageSize
	records, total, err := s.records.Fetch(ctx, rows, pageSize, offset)
	if err != nil && rows != base {
		s.logger.Error("saved filter failed at query time, listing unrestricted rows",
			zap.String("afilter", current), zap.String("model", target.Label), zap.Error(err))
		s.metrics.RecordApply(ApplyOutcomeEvaluate, 0)
		records, total, err = s.records.Fetch(ctx, base, pageSize, offset)
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	if records == nil {
		records = []map[string]any{}
	}

	choices, _, err := s.lookups(ctx, actor, target)
	if err != nil {
		return nil, nil, err
	}

	return &dto.ChangelistResponse{
		Entity:         target.Label,
		Rows:           records,
		Choices:        changelistChoices(choices, raw),
		CurrentAFilter: current,
		ClearURL:       clearURL(raw),
		Active:         active,
	}, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// selectedFilter loads the filter named by the changelist parameter. Unknown ids are
// logged and yield nil.
func (s *AdvancedFilterService) selectedFilter(ctx context.Context, target *entity.Entity, id string) *models.AdvancedFilter {
	if _, err := uuid.Parse(id); err != nil {
		s.logger.Error("invalid saved filter id", zap.String("afilter", id), zap.String("model", target.Label))
		s.metrics.RecordApply(ApplyOutcomeNotFound, 0)
		return nil
	}
	filter, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("invalid saved filter id", zap.String("afilter", id), zap.String("model", target.Label))
		} else {
			s.logger.Error("failed to load saved filter", zap.String("afilter", id), zap.Error(err))
		}
		s.metrics.RecordApply(ApplyOutcomeNotFound, 0)
		return nil
	}
	return filter
}

func (s *AdvancedFilterService) editable(ctx context.Context, actor models.Principal, id string) (*models.AdvancedFilter, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "advanced filter not found")
	}
	filter, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "advanced filter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load advanced filter")
	}
	if !s.visibility.CanEdit(actor, filter) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "advanced filter is not shared with this user")
	}
	return filter, nil
}

func (s *AdvancedFilterService) setQuery(filter *models.AdvancedFilter, target *entity.Entity, node *dto.QueryNode) error {
	if node == nil {
		if filter.IsHeading {
			filter.B64Query = ""
			return nil
		}
		return appErrors.Clone(appErrors.ErrValidation, "query is required")
	}
	expr, err := node.ToExpression()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query")
	}
	if err := query.CheckValues(expr); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query")
	}
	if unknown := target.UnknownFields(query.Fields(expr)); len(unknown) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("query references unknown fields of %s: %s", target.Label, strings.Join(unknown, ", ")))
	}
	if err := filter.SetQuery(s.serializer, expr); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "query cannot be stored")
	}
	if len(filter.B64Query) > s.config.MaxQueryLength {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("encoded query exceeds %d characters", s.config.MaxQueryLength))
	}
	return nil
}

func (s *AdvancedFilterService) summary(filter *models.AdvancedFilter) dto.AdvancedFilterResponse {
	resp := dto.AdvancedFilterResponse{
		ID:          filter.ID,
		Title:       filter.Title,
		CreatedByID: filter.CreatedByID,
		CreatedAt:   filter.CreatedAt,
		URL:         filter.URL,
		IsHeading:   filter.IsHeading,
		Model:       filter.ModelLabel(),
		Order:       filter.Order,
		Users:       nonNil(filter.UserIDs),
		Groups:      nonNil(filter.GroupIDs),
		EditURL:     fmt.Sprintf("%s/advanced-filters/%s", strings.TrimRight(s.config.APIPrefix, "/"), filter.ID),
	}
	if filter.ModelName != nil {
		resp.ModelName = *filter.ModelName
	}
	if target, err := s.entities.Resolve(filter.ModelLabel()); err == nil {
		resp.ModelURL = fmt.Sprintf("%s?%s=%s", target.ChangelistPath(), AFilterParam, url.QueryEscape(filter.ID))
	} else if filter.ModelLabel() != "" {
		s.logger.Warn("advanced filter references an unknown model", zap.String("filter_id", filter.ID), zap.String("model", filter.ModelLabel()))
	}
	return resp
}

func (s *AdvancedFilterService) detail(filter *models.AdvancedFilter) *dto.AdvancedFilterResponse {
	resp := s.summary(filter)
	if filter.B64Query == "" {
		return &resp
	}
	expr, err := filter.Query()
	if err != nil {
		s.logger.Error("saved filter query could not be decoded", zap.String("filter_id", filter.ID), zap.Error(err))
		s.metrics.RecordDecodeError("detail")
		resp.QueryError = appErrors.ErrDecode.Message
		return &resp
	}
	resp.Query = dto.NewQueryNode(expr)
	resp.Fields = query.Fields(expr)
	if values, err := s.serializer.FieldValues(filter.B64Query); err == nil {
		resp.FieldValues = values
	}
	return &resp
}

func (s *AdvancedFilterService) audit(ctx context.Context, actor models.Principal, action string, filter *models.AdvancedFilter) {
	body, _ := json.Marshal(map[string]interface{}{
		"title":  filter.Title,
		"model":  filter.ModelLabel(),
		"order":  filter.Order,
		"source": auditSource,
	})
	entry := &models.AuditLog{
		UserID:    &actor.UserID,
		Action:    action,
		Resource:  auditResource,
		NewValues: body,
	}
	if filter.ID != "" {
		id := filter.ID
		entry.ResourceID = &id
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record advanced filter audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AdvancedFilterService) invalidateLookups(ctx context.Context, label string) {
	s.cache.Invalidate(ctx, lookupCachePrefix+strings.ToLower(label)+":*")
}

func lookupCacheKey(label string, audience *repository.Audience) string {
	key := lookupCachePrefix + strings.ToLower(label) + ":"
	if audience == nil {
		return key + "all"
	}
	groups := append([]string(nil), audience.GroupIDs...)
	sort.Strings(groups)
	return key + "u=" + audience.UserID + ";g=" + strings.Join(groups, ",")
}

func changelistChoices(choices []models.FilterChoice, raw url.Values) []dto.ChangelistChoice {
	selected := raw.Get(AFilterParam)
	out := make([]dto.ChangelistChoice, 0, len(choices))
	for _, choice := range choices {
		item := dto.ChangelistChoice{ID: choice.ID, Title: choice.Title, IsHeading: choice.IsHeading}
		if choice.IsHeading {
			item.QueryString = choice.ID
		} else {
			item.Selected = selected == choice.ID
			params := cloneValues(raw)
			params.Set(AFilterParam, choice.ID)
			item.QueryString = "?" + params.Encode()
		}
		out = append(out, item)
	}
	return out
}

func clearURL(raw url.Values) string {
	params := cloneValues(raw)
	params.Del(AFilterParam)
	return "?" + params.Encode()
}

func cloneValues(raw url.Values) url.Values {
	out := make(url.Values, len(raw))
	for k, v := range raw {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func withMember(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	if id == "" {
		return ids
	}
	return append(append([]string(nil), ids...), id)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
