package rule

import "sort"

// Evaluator evaluates inquiry attributes against an ordered rule set.
type Evaluator interface {
	// Evaluate walks rules in ascending rule_id and returns the first
	// match. ok is false if no rule matched.
	Evaluate(attrs map[string]string) (m Match, ok bool)
}

// staticEvaluator evaluates against a fixed, already-ordered snapshot of
// rules. It holds no external state and performs no I/O, matching the
// CPU-only evaluation requirement.
type staticEvaluator struct {
	rules []Rule // must already be sorted ascending by ID
}

// NewEvaluator builds an Evaluator over the given rules. Rules are sorted
// ascending by ID defensively, since determinism depends on evaluation
// order, not on caller discipline.
func NewEvaluator(rules []Rule) Evaluator {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &staticEvaluator{rules: sorted}
}

func (e *staticEvaluator) Evaluate(attrs map[string]string) (Match, bool) {
	for _, r := range e.rules {
		if evaluateRule(r, attrs) {
			return Match{
				RuleID:     r.ID,
				Name:       r.Name,
				ActionType: r.ActionType,
				Action:     r.Action,
				CustomText: r.CustomText,
			}, true
		}
	}
	return Match{}, false
}

// evaluateRule reduces a rule's conditions against operators, left to right.
func evaluateRule(r Rule, attrs map[string]string) bool {
	if len(r.Conditions) == 0 {
		return false
	}

	results := make([]bool, len(r.Conditions))
	for i, c := range r.Conditions {
		value, present := attrs[c.Key]
		if !present {
			results[i] = false
			continue
		}
		results[i] = matches(c, value)
	}

	if len(results) == 1 {
		return results[0]
	}

	acc := results[0]
	for i, op := range r.Operators {
		acc = reduce(acc, results[i+1], op)
	}
	return acc
}

// reduce applies a single binary boolean operator, left-associatively.
func reduce(a, b bool, op Operator) bool {
	switch op {
	case OpAND:
		return a && b
	case OpOR:
		return a || b
	case OpNAND:
		return !(a && b)
	case OpNOR:
		return !(a || b)
	default:
		return false
	}
}
