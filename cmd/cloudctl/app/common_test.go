package app

import "testing"

func TestParseSubstitutionsSplitsKeyValuePairs(t *testing.T) {
	vars, err := parseSubstitutions([]string{"flavor=m1.small", "image=ubuntu-22.04"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["flavor"] != "m1.small" || vars["image"] != "ubuntu-22.04" {
		t.Errorf("got %v", vars)
	}
}

func TestParseSubstitutionsRejectsMissingEquals(t *testing.T) {
	if _, err := parseSubstitutions([]string{"notakeyvalue"}); err == nil {
		t.Fatalf("expected an error for a substitution with no '='")
	}
}

func TestParseSubstitutionsAllowsEqualsInValue(t *testing.T) {
	vars, err := parseSubstitutions([]string{"query=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vars["query"] != "a=b" {
		t.Errorf("got %q", vars["query"])
	}
}
