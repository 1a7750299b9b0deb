package errclass

import "testing"

func TestValid(t *testing.T) {
	valid := []Class{Syntax, Logic, Runtime, Performance, Security}
	for _, c := range valid {
		if !c.Valid() {
			t.Fatalf("expected %s to be valid", c)
		}
	}
	if Class("NONSENSE").Valid() {
		t.Fatalf("expected an unrecognized class to be invalid")
	}
}

func TestBudgetGroup(t *testing.T) {
	if Syntax.BudgetGroup() != Syntax {
		t.Fatalf("expected SYNTAX to own its own budget group")
	}
	for _, c := range []Class{Logic, Runtime, Performance, Security} {
		if got := c.BudgetGroup(); got != Logic {
			t.Fatalf("expected %s to share the LOGIC budget group, got %s", c, got)
		}
	}
}

func TestStateNormalize(t *testing.T) {
	cases := map[State]string{
		StateClosed:          "CLOSED",
		StateSyntaxOpen:      "OPEN",
		StateLogicOpen:       "OPEN",
		StatePermanentlyOpen: "OPEN",
		State("UNKNOWN"):     "CLOSED",
	}
	for state, want := range cases {
		if got := state.Normalize(); got != want {
			t.Fatalf("Normalize(%s) = %s, want %s", state, got, want)
		}
	}
}
