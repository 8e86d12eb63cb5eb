package models

import "time"

// Configuration change event types on the config-updates topic. Every
// decision-service instance consumes them and invalidates the named caches.
const (
	EventTypeRulesetUpdated    = "ruleset.updated"
	EventTypeFieldTypesUpdated = "field_types.updated"
	EventTypeOutcomesUpdated   = "outcomes.updated"
)

// Actions carried by ruleset events.
const (
	ActionDeployToShadow   = "deploy_to_shadow"
	ActionPromote          = "promote"
	ActionRemoveFromShadow = "remove_from_shadow"
	ActionReload           = "reload"
)

const (
	GenerationProduction = "production"
	GenerationShadow     = "shadow"
)

// ConfigUpdateEvent announces a configuration mutation to every running
// instance. Generation is empty for events that touch all generations, such as
// field type or outcome vocabulary changes.
type ConfigUpdateEvent struct {
	EventType  string                 `json:"event_type"`
	Generation string                 `json:"generation,omitempty"`
	RuleID     string                 `json:"rule_id,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	ChangedBy  string                 `json:"changed_by,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
