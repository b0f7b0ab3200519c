package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/advanced-filters-api/internal/collection"
	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

// FilterApplier narrows collections with saved filters. A filter that cannot be decoded
// or evaluated leaves the collection unrestricted; the failure is logged and counted.
type FilterApplier struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewFilterApplier constructs a FilterApplier.
func NewFilterApplier(logger *zap.Logger, metrics *MetricsService) *FilterApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterApplier{logger: logger, metrics: metrics}
}

// Apply returns base narrowed by the filter's stored query.
//
// A root group is not evaluated as a whole: each of its children narrows base on its
// own and the results are intersected, so the root connector and negation have no
// effect. Stored filters depend on this.
func (a *FilterApplier) Apply(ctx context.Context, filter *models.AdvancedFilter, base collection.Collection) collection.Collection {
	start := time.Now()
	if filter == nil || filter.B64Query == "" {
		a.metrics.RecordApply(ApplyOutcomeEmpty, time.Since(start))
		return base
	}

	expr, err := filter.Query()
	if err != nil {
		a.logger.Error("saved filter query could not be decoded",
			zap.String("filter_id", filter.ID),
			zap.String("model", filter.ModelLabel()),
			zap.Error(err))
		a.metrics.RecordDecodeError("apply")
		a.metrics.RecordApply(ApplyOutcomeDecode, time.Since(start))
		return base
	}

	narrowed, err := applyExpression(base, expr)
	if err != nil {
		a.logger.Error("saved filter could not be applied",
			zap.String("filter_id", filter.ID),
			zap.String("model", filter.ModelLabel()),
			zap.Error(err))
		a.metrics.RecordApply(ApplyOutcomeEvaluate, time.Since(start))
		return base
	}

	a.logger.Debug("saved filter applied", zap.String("filter_id", filter.ID), zap.Strings("fields", query.Fields(expr)))
	a.metrics.RecordApply(ApplyOutcomeApplied, time.Since(start))
	return narrowed
}

func applyExpression(base collection.Collection, expr query.Expression) (collection.Collection, error) {
	root, ok := expr.(*query.Combinator)
	if !ok {
		narrowed, err := base.Filter(expr)
		if err != nil {
			return nil, err
		}
		return narrowed.Distinct(), nil
	}
	if len(root.Children) == 0 {
		return base, nil
	}

	var result collection.Collection
	for _, child := range root.Children {
		narrowed, err := base.Filter(child)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = narrowed
			continue
		}
		if result, err = result.Intersect(narrowed); err != nil {
			return nil, err
		}
	}
	return result.Distinct(), nil
}
