package rule

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// rejectCodePattern matches a 3-digit SMTP reply code in the 4xx/5xx range.
var rejectCodePattern = regexp.MustCompile(`^[45][0-9]{2}$`)

// Validate checks a Rule against the invariants of §3: at least one
// condition, operators one shorter than conditions, known match kinds and
// operators, a known action type, and an action drawn from that type's
// allowed list (or, for REJECT, a 4xx/5xx code).
func Validate(r Rule) error {
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %q: must have at least one condition", r.Name)
	}
	if len(r.Operators) != len(r.Conditions)-1 {
		return fmt.Errorf("rule %q: expected %d operators for %d conditions, got %d",
			r.Name, len(r.Conditions)-1, len(r.Conditions), len(r.Operators))
	}
	for _, c := range r.Conditions {
		switch c.Match {
		case MatchExact, MatchRegex, MatchWildcard:
		default:
			return fmt.Errorf("rule %q: unknown condition match %q", r.Name, c.Match)
		}
		if c.Key == "" {
			return fmt.Errorf("rule %q: condition key must not be empty", r.Name)
		}
	}
	for _, op := range r.Operators {
		switch op {
		case OpAND, OpOR, OpNAND, OpNOR:
		default:
			return fmt.Errorf("rule %q: unknown operator %q", r.Name, op)
		}
	}

	if err := ValidateAction(r.ActionType, r.Action); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}

	if r.CustomText != "" {
		trimmed := strings.TrimSpace(r.CustomText)
		if trimmed == "" {
			return fmt.Errorf("rule %q: custom_text must be non-empty after trim", r.Name)
		}
		if unicode.IsSpace(rune(r.CustomText[0])) {
			return fmt.Errorf("rule %q: custom_text must not begin with whitespace", r.Name)
		}
	}

	return nil
}

// ValidateAction checks that action is legal for actionType: one of the
// type's fixed tokens, or for REJECT, a 3-digit 4xx/5xx code.
func ValidateAction(actionType ActionType, action string) error {
	allowed, ok := AllowedActions[actionType]
	if !ok {
		return fmt.Errorf("unknown action_type %q", actionType)
	}
	for _, a := range allowed {
		if action == a {
			return nil
		}
	}
	if actionType == ActionReject && rejectCodePattern.MatchString(action) {
		return nil
	}
	return fmt.Errorf("action %q is not valid for action_type %q", action, actionType)
}
