package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	pkgerrors "verdict/pkg/errors"
)

// Rule bodies are CEL expressions evaluated against the normalized event.
// `event` holds the event fields, `lists` the named sets used for membership
// tests. A body yields exactly one value per evaluation: decide("X") for an
// outcome literal, skip() for no decision.
//
//	event.amount > 10000 && event.country in lists["embargoed"]
//	    ? decide("HOLD")
//	    : skip()
const (
	eventVar = "event"
	listsVar = "lists"

	decideFunc = "decide"
	skipFunc   = "skip"

	// noOutcome is the runtime value of skip(); never a valid outcome literal.
	noOutcome = ""
)

const ruleCostLimit = 1_000_000

// Compiler turns rule source into CompiledRules. Safe for concurrent use.
type Compiler struct {
	env *cel.Env
}

func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable(eventVar, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(listsVar, cel.MapType(cel.StringType, cel.ListType(cel.DynType))),
		cel.Function(decideFunc,
			cel.Overload("decide_string", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return v
				}),
			),
		),
		cel.Function(skipFunc,
			cel.Overload("skip", []*cel.Type{}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.String(noOutcome)
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Compiler{env: env}, nil
}

// CompiledRule is the executable artifact of one rule revision. It is owned by
// the Ruleset that built it and never shared across builds.
type CompiledRule struct {
	RuleID   string
	Name     string
	Revision int
	Source   string

	// Statically extracted declarations, sorted and deduplicated.
	Fields   []string
	Lists    []string
	Outcomes []string

	program cel.Program
}

// Eval runs the rule body against one normalized event. It returns the yielded
// outcome literal, or ok=false when the rule yields nothing. Runtime errors
// (missing field, bad comparison, cancelled context) are returned as-is; the
// execution engine isolates them per rule.
func (r *CompiledRule) Eval(ctx context.Context, fields map[string]interface{}, lists map[string][]interface{}) (string, bool, error) {
	vars := map[string]interface{}{
		eventVar: fields,
		listsVar: lists,
	}

	out, _, err := r.program.ContextEval(ctx, vars)
	if err != nil {
		return "", false, fmt.Errorf("rule %s evaluation failed: %w", r.RuleID, err)
	}

	outcome, ok := out.Value().(string)
	if !ok {
		return "", false, fmt.Errorf("rule %s yielded %T, want string", r.RuleID, out.Value())
	}

	if outcome == noOutcome {
		return "", false, nil
	}
	return outcome, true, nil
}

// Compile parses and checks one rule body, statically extracts its field,
// list and outcome declarations, and validates every outcome literal against
// the allowed vocabulary. Outcome validation is strict (fail closed); list
// names are validated lazily at runtime, unknown lists resolve to the empty
// set.
func (c *Compiler) Compile(ruleID, name string, revision int, source string, vocab Vocabulary) (*CompiledRule, error) {
	ast, issues := c.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, pkgerrors.ErrCompile.
			WithCause(issues.Err()).
			WithDetail("rule_id", ruleID)
	}

	if ast.OutputType() != cel.StringType {
		return nil, pkgerrors.ErrCompile.
			WithDetail("rule_id", ruleID).
			WithDetail("message", fmt.Sprintf("rule body must yield decide(...) or skip(), got %v", ast.OutputType()))
	}

	if err := validateYield(ast.NativeRep().Expr()); err != nil {
		return nil, pkgerrors.ErrCompile.
			WithCause(err).
			WithDetail("rule_id", ruleID)
	}

	ext := newExtractor()
	if err := ext.walk(ast.NativeRep().Expr()); err != nil {
		return nil, pkgerrors.ErrCompile.
			WithCause(err).
			WithDetail("rule_id", ruleID)
	}

	for _, outcome := range ext.sortedOutcomes() {
		if !vocab.Contains(outcome) {
			return nil, pkgerrors.ErrUnknownOutcome.
				WithDetail("rule_id", ruleID).
				WithDetail("outcome", outcome)
		}
	}

	program, err := c.env.Program(ast, cel.CostLimit(ruleCostLimit))
	if err != nil {
		return nil, pkgerrors.ErrCompile.
			WithCause(err).
			WithDetail("rule_id", ruleID)
	}

	return &CompiledRule{
		RuleID:   ruleID,
		Name:     name,
		Revision: revision,
		Source:   source,
		Fields:   ext.sortedFields(),
		Lists:    ext.sortedLists(),
		Outcomes: ext.sortedOutcomes(),
		program:  program,
	}, nil
}

// Check compiles a rule body without building a program, for author-facing
// save/test validation.
func (c *Compiler) Check(ruleID, source string, vocab Vocabulary) error {
	_, err := c.Compile(ruleID, "", 0, source, vocab)
	return err
}

// validateYield enforces that every value the body can yield originates from
// decide() or skip(). The string output type alone is not enough: a bare
// string literal or a conditional branch yielding one would carry an outcome
// that never passed vocabulary validation.
func validateYield(e celast.Expr) error {
	if e.Kind() == celast.CallKind {
		call := e.AsCall()
		switch call.FunctionName() {
		case decideFunc, skipFunc:
			return nil
		case operators.Conditional:
			args := call.Args()
			if len(args) == 3 {
				if err := validateYield(args[1]); err != nil {
					return err
				}
				return validateYield(args[2])
			}
		}
	}
	return fmt.Errorf("rule body must yield decide(...) or skip() on every branch")
}

// extractor walks a checked rule AST and records every event field reference,
// list reference and decide() literal without executing anything.
type extractor struct {
	fields   map[string]struct{}
	lists    map[string]struct{}
	outcomes map[string]struct{}
}

func newExtractor() *extractor {
	return &extractor{
		fields:   make(map[string]struct{}),
		lists:    make(map[string]struct{}),
		outcomes: make(map[string]struct{}),
	}
}

func (x *extractor) walk(e celast.Expr) error {
	switch e.Kind() {
	case celast.SelectKind:
		if path, ok := eventPath(e); ok {
			x.fields[path] = struct{}{}
			return nil
		}
		return x.walk(e.AsSelect().Operand())

	case celast.CallKind:
		return x.walkCall(e)

	case celast.ListKind:
		for _, el := range e.AsList().Elements() {
			if err := x.walk(el); err != nil {
				return err
			}
		}
		return nil

	case celast.MapKind:
		for _, entry := range e.AsMap().Entries() {
			me := entry.AsMapEntry()
			if err := x.walk(me.Key()); err != nil {
				return err
			}
			if err := x.walk(me.Value()); err != nil {
				return err
			}
		}
		return nil

	case celast.ComprehensionKind:
		comp := e.AsComprehension()
		for _, sub := range []celast.Expr{
			comp.IterRange(), comp.AccuInit(), comp.LoopCondition(), comp.LoopStep(), comp.Result(),
		} {
			if err := x.walk(sub); err != nil {
				return err
			}
		}
		return nil

	default:
		return nil
	}
}

func (x *extractor) walkCall(e celast.Expr) error {
	call := e.AsCall()

	switch call.FunctionName() {
	case decideFunc:
		args := call.Args()
		if len(args) != 1 || args[0].Kind() != celast.LiteralKind {
			return fmt.Errorf("decide() requires a constant string outcome literal")
		}
		lit, ok := args[0].AsLiteral().Value().(string)
		if !ok || lit == "" {
			return fmt.Errorf("decide() requires a non-empty string outcome literal")
		}
		x.outcomes[lit] = struct{}{}
		return nil

	case operators.Index:
		args := call.Args()
		if len(args) == 2 && args[0].Kind() == celast.IdentKind {
			switch args[0].AsIdent() {
			case listsVar:
				name, ok := constString(args[1])
				if !ok || name == "" {
					return fmt.Errorf("list references must use a non-empty constant name")
				}
				x.lists[name] = struct{}{}
				return nil
			case eventVar:
				field, ok := constString(args[1])
				if !ok || field == "" {
					return fmt.Errorf("event field references must use a non-empty constant name")
				}
				x.fields[field] = struct{}{}
				return nil
			}
		}
	}

	if call.Target() != nil {
		if err := x.walk(call.Target()); err != nil {
			return err
		}
	}
	for _, arg := range call.Args() {
		if err := x.walk(arg); err != nil {
			return err
		}
	}
	return nil
}

// eventPath resolves a select chain rooted at the event variable to its dotted
// field path. Returns ok=false when the chain is rooted elsewhere.
func eventPath(e celast.Expr) (string, bool) {
	switch e.Kind() {
	case celast.IdentKind:
		if e.AsIdent() == eventVar {
			return "", true
		}
		return "", false
	case celast.SelectKind:
		sel := e.AsSelect()
		prefix, ok := eventPath(sel.Operand())
		if !ok {
			return "", false
		}
		if prefix == "" {
			return sel.FieldName(), true
		}
		return prefix + "." + sel.FieldName(), true
	default:
		return "", false
	}
}

func constString(e celast.Expr) (string, bool) {
	if e.Kind() != celast.LiteralKind {
		return "", false
	}
	s, ok := e.AsLiteral().Value().(string)
	return s, ok
}

func (x *extractor) sortedFields() []string   { return sortedKeys(x.fields) }
func (x *extractor) sortedLists() []string    { return sortedKeys(x.lists) }
func (x *extractor) sortedOutcomes() []string { return sortedKeys(x.outcomes) }

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
