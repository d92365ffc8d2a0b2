package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/aasemble/cloudctl/pkg/resource"
)

type fakeDriver struct {
	detected     *resource.Collection
	applied      *resource.Collection
	cleaned      *resource.Collection
	detectErr    error
	applyErr     error
	cleanErr     error
	clusterData  map[string]interface{}
}

func (f *fakeDriver) DetectResources(ctx context.Context) (*resource.Collection, error) {
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	if f.detected == nil {
		return resource.NewCollection(), nil
	}
	return f.detected, nil
}

func (f *fakeDriver) ApplyResources(ctx context.Context, coll *resource.Collection) error {
	f.applied = coll
	return f.applyErr
}

func (f *fakeDriver) CleanResources(ctx context.Context, coll *resource.Collection) error {
	f.cleaned = coll
	return f.cleanErr
}

func (f *fakeDriver) CreateNode(ctx context.Context, n *resource.Node) error { return nil }
func (f *fakeDriver) CreateSecurityGroup(ctx context.Context, sg *resource.SecurityGroup) error {
	return nil
}
func (f *fakeDriver) CreateSecurityGroupRule(ctx context.Context, r resource.SecurityGroupRule) error {
	return nil
}
func (f *fakeDriver) DeleteNode(ctx context.Context, n *resource.Node) error { return nil }

func (f *fakeDriver) DetectFirewalls(ctx context.Context) (*resource.NamedSet, *resource.RuleSet, error) {
	return resource.NewNamedSet(), resource.NewRuleSet(), nil
}

func (f *fakeDriver) DetectNodes(ctx context.Context) ([]*resource.Node, error) {
	return nil, nil
}

func (f *fakeDriver) ClusterData(coll *resource.Collection) (map[string]interface{}, error) {
	return f.clusterData, nil
}

func TestApplyDetectsAndAppliesOnlyTheDiff(t *testing.T) {
	detected := resource.NewCollection()
	detected.Nodes.Add(resource.NewNode("web"))

	desired := resource.NewCollection()
	desired.Nodes.Add(resource.NewNode("web"))
	db := resource.NewNode("db")
	db.FloatingIPs = resource.NewFloatingIPSet()
	desired.Nodes.Add(db)

	drv := &fakeDriver{detected: detected}
	summary, err := Apply(context.Background(), drv, desired, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if drv.applied.Nodes.Len() != 1 {
		t.Fatalf("expected only the missing node to be applied, got %d", drv.applied.Nodes.Len())
	}
	if _, ok := drv.applied.Nodes.Get("db"); !ok {
		t.Errorf("expected %q to be applied", "db")
	}
	if len(summary) != 1 || summary[0].NodeName != "db" {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestApplyAssumeEmptySkipsDetection(t *testing.T) {
	desired := resource.NewCollection()
	desired.Nodes.Add(resource.NewNode("web"))

	drv := &fakeDriver{detectErr: errors.New("should not be called")}
	_, err := Apply(context.Background(), drv, desired, Options{AssumeEmpty: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drv.applied.Nodes.Len() != 1 {
		t.Errorf("expected the full desired collection to be applied, got %d", drv.applied.Nodes.Len())
	}
}

func TestApplyWrapsApplyResourcesError(t *testing.T) {
	sentinel := errors.New("boom")
	drv := &fakeDriver{applyErr: sentinel}
	_, err := Apply(context.Background(), drv, resource.NewCollection(), Options{})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestCleanDetectsThenCleans(t *testing.T) {
	detected := resource.NewCollection()
	detected.Nodes.Add(resource.NewNode("stale"))

	drv := &fakeDriver{detected: detected}
	if err := Clean(context.Background(), drv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drv.cleaned != detected {
		t.Errorf("expected Clean to pass the detected collection through to CleanResources")
	}
}
