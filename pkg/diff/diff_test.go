package diff

import (
	"testing"

	"github.com/aasemble/cloudctl/pkg/resource"
)

func TestComputeSubtractsDetectedFromDesired(t *testing.T) {
	desired := resource.NewCollection()
	desired.Nodes.Add(resource.NewNode("web"))
	desired.Nodes.Add(resource.NewNode("db"))

	detected := resource.NewCollection()
	detected.Nodes.Add(resource.NewNode("web"))

	missing := Compute(desired, detected)

	if missing.Nodes.Len() != 1 {
		t.Fatalf("expected 1 missing node, got %d", missing.Nodes.Len())
	}
	if _, ok := missing.Nodes.Get("db"); !ok {
		t.Errorf("expected missing node %q to survive the diff", "db")
	}
	if missing.OriginalCollection != desired {
		t.Errorf("expected OriginalCollection to point back at desired")
	}
}

func TestComputeWithNothingDetectedReturnsEverything(t *testing.T) {
	desired := resource.NewCollection()
	desired.Nodes.Add(resource.NewNode("web"))

	missing := Compute(desired, resource.NewCollection())
	if missing.Nodes.Len() != 1 {
		t.Errorf("expected all desired nodes to be missing, got %d", missing.Nodes.Len())
	}
}
