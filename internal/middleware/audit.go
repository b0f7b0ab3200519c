package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/advanced-filters-api/internal/models"
)

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditFilterUse records which saved filter a user listed a changelist with. Requests
// without a well-formed filter id and failed requests are skipped.
func AuditFilterUse(repo auditRecorder, param string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		afilter, present := c.GetQuery(param)
		if !present || c.Writer.Status() >= 400 {
			return
		}
		if _, err := uuid.Parse(afilter); err != nil {
			return
		}

		var userID *string
		if claims := Claims(c); claims != nil {
			userID = &claims.UserID
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.Request.URL.Path,
			"app":     c.Param("app"),
			"model":   c.Param("model"),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		err := repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     models.AuditActionFilterApply,
			Resource:   "advanced_filters",
			ResourceID: &afilter,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
		if err != nil {
			logger.Warn("failed to record filter use", zap.String("afilter", afilter), zap.Error(err))
		}
	}
}
