// Package rule contains domain types and the evaluation engine for
// ordered attribute-matching rules.
package rule

import "fmt"

// MatchKind identifies how a Condition compares an attribute value.
type MatchKind string

const (
	// MatchExact requires a byte-equal comparison.
	MatchExact MatchKind = "exact"
	// MatchRegex matches if the attribute value starts with the pattern
	// (prefix-anchored, never full-string anchored).
	MatchRegex MatchKind = "regex"
	// MatchWildcard treats '*' in Value as "zero or more characters" and
	// requires a whole-string match.
	MatchWildcard MatchKind = "wildcard"
)

// Condition is a single attribute predicate.
type Condition struct {
	Key   string
	Match MatchKind
	Value string
}

// Operator combines two boolean results, left-associatively.
type Operator string

const (
	OpAND  Operator = "AND"
	OpOR   Operator = "OR"
	OpNAND Operator = "NAND"
	OpNOR  Operator = "NOR"
)

// ActionType classifies the kind of verdict a Rule produces.
type ActionType string

const (
	ActionAccept ActionType = "ACCEPT"
	ActionReject ActionType = "REJECT"
	ActionOther  ActionType = "OTHER"
)

// AllowedActions enumerates the fixed action tokens for ACCEPT and OTHER.
// REJECT additionally accepts any 3-digit code matching [45][0-9]{2},
// validated separately (see ValidateAction).
var AllowedActions = map[ActionType][]string{
	ActionAccept: {"OK"},
	ActionReject: {"REJECT", "DEFER", "DEFER_IF_REJECT", "DEFER_IF_PERMIT"},
	ActionOther:  {"BCC", "DISCARD", "DUNNO", "FILTER", "HOLD", "WARN"},
}

// Rule is a single ordered predicate-to-action mapping.
//
// Rule_id forms a dense, contiguous sequence 1..N across the whole rule
// set; the Registry is responsible for maintaining that invariant across
// create/update/delete/move.
type Rule struct {
	ID         int
	Name       string
	Conditions []Condition
	Operators  []Operator
	ActionType ActionType
	Action     string
	CustomText string
}

// Match describes the outcome of a rule evaluation that matched.
type Match struct {
	RuleID     int
	Name       string
	ActionType ActionType
	Action     string
	CustomText string
}

// Verdict renders the match into the wire verdict text: "<action> <custom text>",
// with trailing whitespace collapsed when CustomText is empty.
func (m Match) Verdict() string {
	if m.CustomText == "" {
		return m.Action
	}
	return fmt.Sprintf("%s %s", m.Action, m.CustomText)
}
