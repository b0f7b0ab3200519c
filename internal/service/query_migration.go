package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/advanced-filters-api/internal/models"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

type storedQueryRepository interface {
	ListQueries(ctx context.Context) ([]models.AdvancedFilter, error)
	UpdateQuery(ctx context.Context, id, encoded string) error
}

// ReencodeReport summarises a re-encoding run.
type ReencodeReport struct {
	Scanned   int      `json:"scanned"`
	Rewritten int      `json:"rewritten"`
	Unchanged int      `json:"unchanged"`
	Empty     int      `json:"empty"`
	// Compacted counts rows kept in msgpack because the target format was too long.
	Compacted int      `json:"compacted"`
	Failed    []string `json:"failed,omitempty"`
}

// QueryMigrator rewrites stored queries into the configured wire format. It upgrades
// legacy payloads and switches codecs when the format setting changes.
type QueryMigrator struct {
	repo       storedQueryRepository
	serializer *query.Serializer
	compact    *query.Serializer
	maxLength  int
	logger     *zap.Logger
}

// NewQueryMigrator constructs a QueryMigrator. Rewritten queries longer than maxLength
// are stored in msgpack instead, or left untouched when even that does not fit.
func NewQueryMigrator(repo storedQueryRepository, format query.Format, maxLength int, logger *zap.Logger) *QueryMigrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLength <= 0 {
		maxLength = 2048
	}
	return &QueryMigrator{
		repo:       repo,
		serializer: query.NewSerializer(format),
		compact:    query.NewSerializer(query.FormatMsgpack),
		maxLength:  maxLength,
		logger:     logger,
	}
}

// Reencode decodes every stored query and writes it back in the target format. Rows
// that fail to decode are reported and left untouched. dryRun skips the writes.
func (m *QueryMigrator) Reencode(ctx context.Context, dryRun bool) (*ReencodeReport, error) {
	filters, err := m.repo.ListQueries(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReencodeReport{}
	for i := range filters {
		filter := &filters[i]
		report.Scanned++
		if filter.B64Query == "" {
			report.Empty++
			continue
		}

		expr, err := m.serializer.Decode(filter.B64Query)
		if err != nil {
			m.logger.Warn("stored query could not be decoded", zap.String("filter_id", filter.ID), zap.Error(err))
			report.Failed = append(report.Failed, filter.ID)
			continue
		}
		encoded, compacted, err := m.encode(expr)
		if err != nil {
			m.logger.Warn("stored query could not be re-encoded", zap.String("filter_id", filter.ID), zap.Error(err))
			report.Failed = append(report.Failed, filter.ID)
			continue
		}
		if compacted {
			report.Compacted++
		}
		if encoded == filter.B64Query {
			report.Unchanged++
			continue
		}

		report.Rewritten++
		if dryRun {
			continue
		}
		if err := m.repo.UpdateQuery(ctx, filter.ID, encoded); err != nil {
			return report, fmt.Errorf("rewrite filter %s: %w", filter.ID, err)
		}
	}

	m.logger.Info("stored queries re-encoded",
		zap.String("format", string(m.serializer.Format())),
		zap.Bool("dry_run", dryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("rewritten", report.Rewritten),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// encode writes expr in the target format, falling back to msgpack when the result
// exceeds maxLength. compacted reports whether the fallback was used.
func (m *QueryMigrator) encode(expr query.Expression) (encoded string, compacted bool, err error) {
	encoded, err = m.serializer.Encode(expr)
	if err != nil {
		return "", false, err
	}
	if len(encoded) <= m.maxLength {
		return encoded, false, nil
	}
	if m.serializer.Format() != query.FormatMsgpack {
		encoded, err = m.compact.Encode(expr)
		if err != nil {
			return "", false, err
		}
		if len(encoded) <= m.maxLength {
			return encoded, true, nil
		}
	}
	return "", false, fmt.Errorf("encoded query is %d characters, limit is %d", len(encoded), m.maxLength)
}
