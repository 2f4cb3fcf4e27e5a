package rule

import "testing"

func validRule() Rule {
	return Rule{
		ID:         1,
		Name:       "block bad sender",
		Conditions: []Condition{exactCond("sender", "a@b.com")},
		ActionType: ActionReject,
		Action:     "REJECT",
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	if err := Validate(validRule()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoConditions(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.Conditions = nil
	if err := Validate(r); err == nil {
		t.Error("expected error for a rule with no conditions")
	}
}

func TestValidate_OperatorCountMismatch(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.Conditions = []Condition{exactCond("a", "1"), exactCond("b", "1")}
	r.Operators = nil
	if err := Validate(r); err == nil {
		t.Error("expected error: two conditions require exactly one operator")
	}
}

func TestValidate_UnknownMatchKind(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.Conditions[0].Match = "fuzzy"
	if err := Validate(r); err == nil {
		t.Error("expected error for unknown match kind")
	}
}

func TestValidate_EmptyConditionKey(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.Conditions[0].Key = ""
	if err := Validate(r); err == nil {
		t.Error("expected error for empty condition key")
	}
}

func TestValidate_UnknownOperator(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.Conditions = []Condition{exactCond("a", "1"), exactCond("b", "1")}
	r.Operators = []Operator{"XOR"}
	if err := Validate(r); err == nil {
		t.Error("expected error for unknown operator")
	}
}

func TestValidateAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		actionType ActionType
		action     string
		wantErr    bool
	}{
		{"accept ok", ActionAccept, "OK", false},
		{"accept bad token", ActionAccept, "REJECT", true},
		{"reject fixed token", ActionReject, "DEFER", false},
		{"reject 550 code", ActionReject, "550", false},
		{"reject 450 code", ActionReject, "450", false},
		{"reject bad code range", ActionReject, "350", true},
		{"reject non numeric", ActionReject, "55A", true},
		{"other discard", ActionOther, "DISCARD", false},
		{"other bad token", ActionOther, "OK", true},
		{"unknown action type", ActionType("WEIRD"), "OK", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateAction(tc.actionType, tc.action)
			if tc.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_CustomTextLeadingWhitespace(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.CustomText = " blocked"
	if err := Validate(r); err == nil {
		t.Error("expected error: custom_text must not begin with whitespace")
	}
}

func TestValidate_CustomTextBlank(t *testing.T) {
	t.Parallel()
	r := validRule()
	r.CustomText = "\t"
	if err := Validate(r); err == nil {
		t.Error("expected error: custom_text must be non-empty after trim")
	}
}
