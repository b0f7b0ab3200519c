package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advanced-filters-api/internal/dto"
	"github.com/noah-isme/advanced-filters-api/internal/middleware"
	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/internal/service"
	"github.com/noah-isme/advanced-filters-api/pkg/response"
)

// changelistService serves entity listings with saved filter menus.
type changelistService interface {
	principalResolver
	Lookups(ctx context.Context, actor models.Principal, app, model string) ([]models.FilterChoice, bool, error)
	Changelist(ctx context.Context, actor models.Principal, params dto.ChangelistParams, raw url.Values) (*dto.ChangelistResponse, *models.Pagination, error)
}

// ChangelistHandler exposes entity listings narrowed by saved filters.
type ChangelistHandler struct {
	service changelistService
}

// NewChangelistHandler builds the changelist handler.
func NewChangelistHandler(service changelistService) *ChangelistHandler {
	return &ChangelistHandler{service: service}
}

// Lookups godoc
// @Summary Saved filter menu of an entity
// @Tags Changelist
// @Produce json
// @Param app path string true "App label"
// @Param model path string true "Model name"
// @Success 200 {object} response.Envelope
// @Router /admin/{app}/{model}/lookups [get]
func (h *ChangelistHandler) Lookups(c *gin.Context) {
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	choices, hit, err := h.service.Lookups(c.Request.Context(), actor, c.Param("app"), c.Param("model"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, choices, nil, middleware.ExtractMeta(c))
}

// List godoc
// @Summary Entity changelist
// @Tags Changelist
// @Produce json
// @Param app path string true "App label"
// @Param model path string true "Model name"
// @Param _afilter query string false "Saved filter ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/{app}/{model}/ [get]
func (h *ChangelistHandler) List(c *gin.Context) {
	actor, ok := principalFromContext(c, h.service)
	if !ok {
		return
	}
	raw := c.Request.URL.Query()
	params := dto.ChangelistParams{
		App:      c.Param("app"),
		Model:    c.Param("model"),
		AFilter:  raw.Get(service.AFilterParam),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 0),
	}
	resp, pagination, err := h.service.Changelist(c.Request.Context(), actor, params, raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	if resp.CurrentAFilter != "" {
		middleware.SetMeta(c, "afilter", resp.CurrentAFilter)
	}
	response.JSON(c, http.StatusOK, resp, pagination, middleware.ExtractMeta(c))
}
