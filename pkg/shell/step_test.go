package shell

import (
	"testing"

	"github.com/aasemble/cloudctl/pkg/resource"
)

func TestBuildEnvPrefixIncludesAllNodesSorted(t *testing.T) {
	r := &StepRunner{Nodes: map[string]*resource.Node{
		"web2": {Name: "web2"},
		"web1": {Name: "web1"},
	}}
	prefix := r.buildEnvPrefix(Step{})
	want := `ALL_NODES="web1 web2"`
	if prefix != want {
		t.Errorf("got %q, want %q", prefix, want)
	}
}

func TestBuildEnvPrefixExportsFixedIPs(t *testing.T) {
	n := &resource.Node{Name: "web1", Export: true, Ports: []resource.Port{
		{NetworkName: "private", FixedIP: "10.0.0.5"},
	}}
	r := &StepRunner{Nodes: map[string]*resource.Node{"web1": n}}
	prefix := r.buildEnvPrefix(Step{})
	want := `ALL_NODES="web1" AASEMBLE_web1_private_fixed="10.0.0.5"`
	if prefix != want {
		t.Errorf("got %q, want %q", prefix, want)
	}
}

func TestBuildShellCmdLocal(t *testing.T) {
	r := &StepRunner{Nodes: map[string]*resource.Node{}}
	cmd, err := r.buildShellCmd(Step{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `ALL_NODES="" bash`
	if cmd != want {
		t.Errorf("got %q, want %q", cmd, want)
	}
}

func TestBuildShellCmdRemoteUsesFirstFloatingIP(t *testing.T) {
	n := &resource.Node{Name: "web1", Ports: []resource.Port{
		{FloatingIP: ""},
		{FloatingIP: "203.0.113.5"},
	}}
	r := &StepRunner{Nodes: map[string]*resource.Node{"web1": n}}
	cmd, err := r.buildShellCmd(Step{Type: "remote", Node: "web1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !(len(cmd) > 0 && cmd[:4] == "ssh ") {
		t.Errorf("expected ssh-wrapped command, got %q", cmd)
	}
}

func TestBuildShellCmdRemoteRequiresFloatingIP(t *testing.T) {
	n := &resource.Node{Name: "web1"}
	r := &StepRunner{Nodes: map[string]*resource.Node{"web1": n}}
	if _, err := r.buildShellCmd(Step{Type: "remote", Node: "web1"}); err == nil {
		t.Errorf("expected error when node has no floating ip")
	}
}
