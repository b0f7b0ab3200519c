package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/advanced-filters-api/internal/middleware"
	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/pkg/response"
)

type principalResolver interface {
	ResolvePrincipal(ctx context.Context, claims *models.JWTClaims) (models.Principal, error)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// principalFromContext resolves the caller and writes the error response when that
// fails.
func principalFromContext(c *gin.Context, resolver principalResolver) (models.Principal, bool) {
	p, err := resolver.ResolvePrincipal(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return models.Principal{}, false
	}
	return p, true
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
