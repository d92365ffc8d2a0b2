package substitution

import "testing"

func TestExpandBraced(t *testing.T) {
	got := Expand("host: ${name}", map[string]string{"name": "web1"})
	if got != "host: web1" {
		t.Errorf("got %q", got)
	}
}

func TestExpandBare(t *testing.T) {
	got := Expand("host: $name", map[string]string{"name": "web1"})
	if got != "host: web1" {
		t.Errorf("got %q", got)
	}
}

func TestExpandDefaultUsedWhenMissing(t *testing.T) {
	got := Expand("port: ${port:-8080}", nil)
	if got != "port: 8080" {
		t.Errorf("got %q", got)
	}
}

func TestExpandDefaultIgnoredWhenPresent(t *testing.T) {
	got := Expand("port: ${port:-8080}", map[string]string{"port": "9090"})
	if got != "port: 9090" {
		t.Errorf("got %q", got)
	}
}

func TestExpandMissingWithoutDefaultIsEmpty(t *testing.T) {
	got := Expand("x: $missing", nil)
	if got != "x: " {
		t.Errorf("got %q", got)
	}
}

func TestExpandDollarDollarIsLiteral(t *testing.T) {
	got := Expand("price: $$5", nil)
	if got != "price: $5" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEmptyDefault(t *testing.T) {
	got := Expand("x: ${missing:-}", nil)
	if got != "x: " {
		t.Errorf("got %q", got)
	}
}

func TestExpandMultipleReferences(t *testing.T) {
	got := Expand("$a-$b-${a}", map[string]string{"a": "1", "b": "2"})
	if got != "1-2-1" {
		t.Errorf("got %q", got)
	}
}
