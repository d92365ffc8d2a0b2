package digitalocean

import "testing"

func TestNamespaceFromTags(t *testing.T) {
	if got := namespaceFromTags([]string{"other", "aasemble-ns-team-a"}); got != "team-a" {
		t.Errorf("got %q", got)
	}
	if got := namespaceFromTags([]string{"unrelated"}); got != "" {
		t.Errorf("expected empty string when no namespace tag present, got %q", got)
	}
}

func TestSplitPrefix(t *testing.T) {
	if got := splitPrefix("example.com/path"); got != "example.com" {
		t.Errorf("got %q", got)
	}
	if got := splitPrefix("example.com"); got != "example.com" {
		t.Errorf("got %q", got)
	}
}
