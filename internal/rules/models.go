package rules

import "time"

// RuleRevision is an immutable snapshot of one rule at one revision. Saving a
// rule always appends a new revision; revisions start at 1 and increase
// monotonically per rule id.
type RuleRevision struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	Name         string    `json:"name"`
	Revision     int       `json:"revision"`
	Source       string    `json:"source"`
	Outcomes     []string  `json:"outcomes"`
	State        string    `json:"state"` // shadow, active, retired
	ChangedBy    string    `json:"changed_by,omitempty"`
	ChangeReason string    `json:"change_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConfigEntry pins one rule into a ruleset configuration. Revision 0 marks a
// shadow draft whose source is carried inline and has no saved revision yet.
type ConfigEntry struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name,omitempty"`
	Revision int    `json:"revision"`
	Source   string `json:"source,omitempty"`
}

func (e ConfigEntry) IsDraft() bool {
	return e.Revision == 0
}

// RulesetConfig is one deployable generation of the rule catalog. Every
// mutation appends a new version row; the current configuration is the highest
// version for its generation.
type RulesetConfig struct {
	ID         string        `json:"id"`
	Generation string        `json:"generation"` // production, shadow
	Version    int           `json:"version"`
	Entries    []ConfigEntry `json:"entries"`
	ChangedBy  string        `json:"changed_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Entry returns the entry for a rule id and whether it is present.
func (c *RulesetConfig) Entry(ruleID string) (ConfigEntry, bool) {
	for _, e := range c.Entries {
		if e.RuleID == ruleID {
			return e, true
		}
	}
	return ConfigEntry{}, false
}

// WithoutRule returns a copy of the entry list with the given rule removed,
// preserving order.
func (c *RulesetConfig) WithoutRule(ruleID string) []ConfigEntry {
	entries := make([]ConfigEntry, 0, len(c.Entries))
	for _, e := range c.Entries {
		if e.RuleID != ruleID {
			entries = append(entries, e)
		}
	}
	return entries
}

// Vocabulary is the allowed-outcome vocabulary in effect at compile time.
type Vocabulary map[string]struct{}

func NewVocabulary(outcomes []string) Vocabulary {
	v := make(Vocabulary, len(outcomes))
	for _, o := range outcomes {
		v[o] = struct{}{}
	}
	return v
}

func (v Vocabulary) Contains(outcome string) bool {
	_, ok := v[outcome]
	return ok
}
