package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advanced-filters-api/internal/dto"
	"github.com/noah-isme/advanced-filters-api/internal/models"
	appErrors "github.com/noah-isme/advanced-filters-api/pkg/errors"
	"github.com/noah-isme/advanced-filters-api/pkg/response"
)

const (
	popupParam    = "_popup"
	saveGotoParam = "_save_goto"
	popupIframe   = "iframe"
)

type advancedFilterService interface {
	principalResolver
	List(ctx context.Context, actor models.Principal, params models.AdvancedFilterListParams) ([]dto.AdvancedFilterResponse, *models.Pagination, error)
	Get(ctx context.Context, actor models.Principal, id, popup string) (*dto.AdvancedFilterResponse, error)
	Create(ctx context.Context, actor models.Principal, model string, req dto.CreateAdvancedFilterRequest) (*dto.AdvancedFilterResponse, error)
	Update(ctx context.Context, actor models.Principal, id string, req dto.UpdateAdvancedFilterRequest) (*dto.AdvancedFilterResponse, error)
	Delete(ctx context.Context, actor models.Principal, id string) error
	Reorder(ctx context.Context, actor models.Principal, req dto.ReorderAdvancedFiltersRequest) error
}

// AdvancedFilterHandler manages saved filters.
type AdvancedFilterHandler struct {
	service advancedFilterService
}

// NewAdvancedFilterHandler builds the saved filter handler.
func NewAdvancedFilterHandler(service advancedFilterService) *AdvancedFilterHandler {
	return &AdvancedFilterHandler{service: service}
}

// List godoc
// @Summary List saved filters
// @Tags Advanced Filters
// @Produce json
// @Param q query string false "Search over title and model name"
// @Param model_name query string false "Model name"
// @Param model query string false "app.Model label"
// @Param ajax query int false "1 excludes headings and orders by model name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /advanced-filters [get]
func (h *AdvancedFilterHandler) List(c *gin.Context) {
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	params := models.AdvancedFilterListParams{
		Search:    c.Query("q"),
		ModelName: c.Query("model_name"),
		Model:     c.Query("model"),
		AJAX:      c.Query("ajax") == "1",
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
	}
	items, pagination, err := h.service.List(c.Request.Context(), actor, params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a saved filter
// @Tags Advanced Filters
// @Produce json
// @Param id path string true "Filter ID"
// @Param _popup query string false "iframe for the reduced view"
// @Success 200 {object} response.Envelope
// @Router /advanced-filters/{id} [get]
func (h *AdvancedFilterHandler) Get(c *gin.Context) {
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), actor, c.Param("id"), c.Query(popupParam))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Save a new filter
// @Tags Advanced Filters
// @Accept json
// @Produce json
// @Param model query string true "app.Model label"
// @Param _popup query string false "iframe for popup editing"
// @Param payload body dto.CreateAdvancedFilterRequest true "Filter payload"
// @Success 201 {object} response.Envelope
// @Router /advanced-filters [post]
func (h *AdvancedFilterHandler) Create(c *gin.Context) {
	var req dto.CreateAdvancedFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid advanced filter payload"))
		return
	}
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	item, err := h.service.Create(c.Request.Context(), actor, c.Query("model"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if c.Query(popupParam) == popupIframe {
		changePath := strings.TrimRight(c.Request.URL.Path, "/") + "/" + item.ID
		response.JSON(c, http.StatusCreated, popupMutation(item, changePath,
			fmt.Sprintf("The advanced filter %q was added successfully.", item.Title)), nil)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update a saved filter
// @Tags Advanced Filters
// @Accept json
// @Produce json
// @Param id path string true "Filter ID"
// @Param _save_goto query int false "1 redirects to the filtered changelist"
// @Param _popup query string false "iframe for popup editing"
// @Param payload body dto.UpdateAdvancedFilterRequest true "Filter payload"
// @Success 200 {object} response.Envelope
// @Success 303
// @Router /advanced-filters/{id} [put]
func (h *AdvancedFilterHandler) Update(c *gin.Context) {
	var req dto.UpdateAdvancedFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid advanced filter payload"))
		return
	}
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	item, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if c.Query(saveGotoParam) == "1" && item.ModelURL != "" {
		response.SeeOther(c, item.ModelURL)
		return
	}
	if c.Query(popupParam) == popupIframe {
		response.JSON(c, http.StatusOK, popupMutation(item, c.Request.URL.Path,
			fmt.Sprintf("The advanced filter %q was changed successfully.", item.Title)), nil)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete a saved filter
// @Tags Advanced Filters
// @Param id path string true "Filter ID"
// @Param _popup query string false "iframe for popup editing"
// @Success 204
// @Router /advanced-filters/{id} [delete]
func (h *AdvancedFilterHandler) Delete(c *gin.Context) {
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	if c.Query(popupParam) == popupIframe {
		response.JSON(c, http.StatusOK, dto.AdvancedFilterMutation{
			Popup:   popupIframe,
			Message: "The advanced filter was deleted successfully.",
		}, nil)
		return
	}
	response.NoContent(c)
}

// Reorder godoc
// @Summary Reorder saved filters of one model
// @Tags Advanced Filters
// @Accept json
// @Param payload body dto.ReorderAdvancedFiltersRequest true "New positions"
// @Success 204
// @Router /advanced-filters/order [put]
func (h *AdvancedFilterHandler) Reorder(c *gin.Context) {
	var req dto.ReorderAdvancedFiltersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reorder payload"))
		return
	}
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	if err := h.service.Reorder(c.Request.Context(), actor, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// popupMutation sends the popup back to the change form at path.
func popupMutation(item *dto.AdvancedFilterResponse, path, message string) dto.AdvancedFilterMutation {
	query := url.Values{popupParam: {popupIframe}}
	return dto.AdvancedFilterMutation{
		Filter:   item,
		Redirect: path + "?" + query.Encode(),
		Popup:    popupIframe,
		Message:  message,
	}
}
