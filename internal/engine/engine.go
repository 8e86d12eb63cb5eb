package engine

import (
	"context"
	"sort"
	"time"

	"verdict/internal/lists"
	"verdict/internal/logger"
	"verdict/internal/rules"
	pkgerrors "verdict/pkg/errors"
	"verdict/pkg/metrics"
	"verdict/pkg/models"
)

// Engine runs a compiled ruleset against normalized events. It is stateless:
// the ruleset and the event carry everything an evaluation needs, so a single
// engine serves production, shadow and backtest traffic concurrently.
type Engine struct {
	resolver lists.Resolver
	logger   logger.Logger
}

func New(resolver lists.Resolver, log logger.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		logger:   log,
	}
}

// Evaluate runs every rule of the ruleset against the event and aggregates the
// outcomes. Failures are isolated per rule: a rule that errors, panics, or
// depends on an unresolvable list is recorded as failed and the pass
// continues. Each referenced list is resolved at most once per evaluation and
// shared across rules.
func (e *Engine) Evaluate(ctx context.Context, rs *rules.Ruleset, event models.NormalizedEvent) (*EvaluationResult, error) {
	start := time.Now()

	resolved, failed := e.resolveLists(ctx, rs.Lists())

	result := &EvaluationResult{
		EventID:       event.ID,
		Generation:    rs.Generation,
		ConfigVersion: rs.ConfigVersion,
		Decisions:     make(map[string]RuleDecision, rs.Len()),
		OutcomeCounts: make(map[string]int),
		RulesTotal:    rs.Len(),
		EvaluatedAt:   start,
	}

	for _, rule := range rs.Rules {
		decision := e.evalRule(ctx, rs.Generation, rule, event.Fields, resolved, failed)
		result.Decisions[rule.RuleID] = decision

		switch {
		case decision.Error != "":
			result.RulesFailed++
		case decision.Matched:
			result.RulesMatched++
			result.OutcomeCounts[decision.Outcome]++
		}
	}

	result.Outcomes = sortedOutcomes(result.OutcomeCounts)
	result.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0

	metrics.ObserveEvaluationDuration(rs.Generation, time.Since(start))
	return result, nil
}

// resolveLists fetches every list the ruleset references, once each. Failed
// lists are tracked by name so only the rules that depend on them fail.
func (e *Engine) resolveLists(ctx context.Context, names []string) (map[string][]interface{}, map[string]error) {
	resolved := make(map[string][]interface{}, len(names))
	failed := make(map[string]error)

	for _, name := range names {
		members, err := e.resolver.ResolveList(ctx, name)
		if err != nil {
			e.logger.WarnwCtx(ctx, "List resolution failed",
				"list", name,
				"error", err,
			)
			failed[name] = err
			continue
		}
		resolved[name] = members
	}
	return resolved, failed
}

func (e *Engine) evalRule(ctx context.Context, generation string, rule *rules.CompiledRule, fields map[string]interface{}, resolved map[string][]interface{}, failed map[string]error) (decision RuleDecision) {
	decision = RuleDecision{
		RuleID:   rule.RuleID,
		Revision: rule.Revision,
	}

	defer func() {
		if r := recover(); r != nil {
			err := pkgerrors.RecoverPanic(r)
			e.logger.ErrorwCtx(ctx, "Rule evaluation panicked",
				"rule_id", rule.RuleID,
				"error", err,
			)
			metrics.RuleErrorsTotal.WithLabelValues(generation).Inc()
			decision.Outcome = ""
			decision.Matched = false
			decision.Error = err.Error()
		}
	}()

	for _, name := range rule.Lists {
		if err, ok := failed[name]; ok {
			metrics.RuleErrorsTotal.WithLabelValues(generation).Inc()
			decision.Error = err.Error()
			return decision
		}
	}

	outcome, ok, err := rule.Eval(ctx, fields, ruleLists(rule, resolved))
	if err != nil {
		metrics.RuleErrorsTotal.WithLabelValues(generation).Inc()
		e.logger.WarnwCtx(ctx, "Rule evaluation failed",
			"rule_id", rule.RuleID,
			"revision", rule.Revision,
			"error", err,
		)
		decision.Error = err.Error()
		return decision
	}

	decision.Outcome = outcome
	decision.Matched = ok
	return decision
}

// ruleLists projects the shared resolution onto the lists a single rule
// declares. Unresolved lists appear as empty sets.
func ruleLists(rule *rules.CompiledRule, resolved map[string][]interface{}) map[string][]interface{} {
	out := make(map[string][]interface{}, len(rule.Lists))
	for _, name := range rule.Lists {
		members, ok := resolved[name]
		if !ok {
			members = []interface{}{}
		}
		out[name] = members
	}
	return out
}

func sortedOutcomes(counts map[string]int) []string {
	outcomes := make([]string, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	return outcomes
}
