package evaluation

import (
	"time"

	"verdict/internal/engine"
)

// EvaluateRequest is the inbound evaluation call: one event, evaluated against
// the current production configuration.
type EvaluateRequest struct {
	EventID   string                 `json:"event_id" binding:"required"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields" binding:"required"`
}

// EvaluateResponse carries the production evaluation result. Shadow results
// are persisted for comparison but never surfaced here.
type EvaluateResponse struct {
	EventID       string                         `json:"event_id"`
	ConfigVersion int                            `json:"config_version"`
	Outcomes      []string                       `json:"outcomes"`
	OutcomeCounts map[string]int                 `json:"outcome_counts"`
	Decisions     map[string]engine.RuleDecision `json:"decisions"`
	EvaluatedAt   time.Time                      `json:"evaluated_at"`
	DurationMs    float64                        `json:"duration_ms"`
}

// StoredResult is the append-only persistence record of one evaluation. The
// normalized event fields are stored alongside the result so backtests can
// replay historical traffic without a separate event archive.
type StoredResult struct {
	EventID       string                         `bson:"event_id" json:"event_id"`
	Timestamp     time.Time                      `bson:"timestamp" json:"timestamp"`
	Generation    string                         `bson:"generation" json:"generation"`
	ConfigVersion int                            `bson:"config_version" json:"config_version"`
	Fields        map[string]interface{}         `bson:"fields" json:"fields"`
	Decisions     map[string]engine.RuleDecision `bson:"decisions" json:"decisions"`
	OutcomeCounts map[string]int                 `bson:"outcome_counts" json:"outcome_counts"`
	Outcomes      []string                       `bson:"outcomes" json:"outcomes"`
	EvaluatedAt   time.Time                      `bson:"evaluated_at" json:"evaluated_at"`
	DurationMs    float64                        `bson:"duration_ms" json:"duration_ms"`
}

func newStoredResult(result *engine.EvaluationResult, timestamp time.Time, fields map[string]interface{}) *StoredResult {
	return &StoredResult{
		EventID:       result.EventID,
		Timestamp:     timestamp,
		Generation:    result.Generation,
		ConfigVersion: result.ConfigVersion,
		Fields:        fields,
		Decisions:     result.Decisions,
		OutcomeCounts: result.OutcomeCounts,
		Outcomes:      result.Outcomes,
		EvaluatedAt:   result.EvaluatedAt,
		DurationMs:    result.DurationMs,
	}
}

func newEvaluateResponse(result *engine.EvaluationResult) *EvaluateResponse {
	return &EvaluateResponse{
		EventID:       result.EventID,
		ConfigVersion: result.ConfigVersion,
		Outcomes:      result.Outcomes,
		OutcomeCounts: result.OutcomeCounts,
		Decisions:     result.Decisions,
		EvaluatedAt:   result.EvaluatedAt,
		DurationMs:    result.DurationMs,
	}
}
