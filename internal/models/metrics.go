package models

import "time"

// ServiceMetrics is a point-in-time summary of instrumentation counters.
type ServiceMetrics struct {
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	FilterApplications       map[string]uint64 `json:"filter_applications"`
	DecodeErrors             uint64            `json:"decode_errors"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
