package engine

import "time"

// RuleDecision is the per-rule output of one evaluation. A rule either yields
// an outcome, yields nothing, or fails; failures never leak into other rules.
type RuleDecision struct {
	RuleID   string `json:"rule_id"`
	Revision int    `json:"revision"`
	Outcome  string `json:"outcome,omitempty"`
	Matched  bool   `json:"matched"`
	Error    string `json:"error,omitempty"`
}

// EvaluationResult aggregates one full ruleset pass over one event.
type EvaluationResult struct {
	EventID       string                  `json:"event_id"`
	Generation    string                  `json:"generation"`
	ConfigVersion int                     `json:"config_version"`
	Decisions     map[string]RuleDecision `json:"decisions"`
	OutcomeCounts map[string]int          `json:"outcome_counts"`
	Outcomes      []string                `json:"outcomes"`
	RulesTotal    int                     `json:"rules_total"`
	RulesMatched  int                     `json:"rules_matched"`
	RulesFailed   int                     `json:"rules_failed"`
	EvaluatedAt   time.Time               `json:"evaluated_at"`
	DurationMs    float64                 `json:"duration_ms"`
}

// HasOutcome reports whether any rule yielded the given outcome.
func (r *EvaluationResult) HasOutcome(outcome string) bool {
	return r.OutcomeCounts[outcome] > 0
}
