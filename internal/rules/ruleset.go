package rules

// BuildEntry is one (rule id, revision, source) tuple handed to the ruleset
// builder, in deployment order.
type BuildEntry struct {
	RuleID   string
	Name     string
	Revision int
	Source   string
}

// Ruleset bundles the compiled rules of one configuration generation. A
// ruleset either builds entirely or not at all; partially-built configurations
// are never returned and never cached.
type Ruleset struct {
	Generation    string
	ConfigVersion int
	Rules         []*CompiledRule
}

func (rs *Ruleset) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rules)
}

// Lists returns the union of list names referenced by the ruleset's rules.
func (rs *Ruleset) Lists() []string {
	seen := make(map[string]struct{})
	for _, r := range rs.Rules {
		for _, l := range r.Lists {
			seen[l] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// BuildRuleset compiles every entry in order against the given outcome
// vocabulary. The first compile failure aborts the whole build.
func (c *Compiler) BuildRuleset(generation string, configVersion int, entries []BuildEntry, vocab Vocabulary) (*Ruleset, error) {
	compiled := make([]*CompiledRule, 0, len(entries))
	for _, e := range entries {
		rule, err := c.Compile(e.RuleID, e.Name, e.Revision, e.Source, vocab)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, rule)
	}

	return &Ruleset{
		Generation:    generation,
		ConfigVersion: configVersion,
		Rules:         compiled,
	}, nil
}
