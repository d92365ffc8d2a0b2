package driver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestApplyMappingsFallsBackToOriginal(t *testing.T) {
	b := &Base{Mappings: map[string]map[string]string{"images": {"ubuntu": "ami-123"}}}
	if got := b.ApplyMappings("images", "ubuntu"); got != "ami-123" {
		t.Errorf("got %q", got)
	}
	if got := b.ApplyMappings("images", "centos"); got != "centos" {
		t.Errorf("unmapped name should pass through unchanged, got %q", got)
	}
}

func TestIsNodeRelevant(t *testing.T) {
	b := &Base{}
	if !b.IsNodeRelevant("anything") {
		t.Errorf("driver with no namespace should consider every node relevant")
	}

	b.Namespace = "team-a"
	if !b.IsNodeRelevant("team-a") {
		t.Errorf("matching namespace should be relevant")
	}
	if b.IsNodeRelevant("team-b") {
		t.Errorf("mismatched namespace should not be relevant")
	}
}

func TestRunPoolRunsAllTasks(t *testing.T) {
	b := &Base{Threads: 2}
	var count int64
	err := b.RunPool(context.Background(), 20, func(ctx context.Context, i int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 20 {
		t.Errorf("expected all 20 tasks to run, got %d", count)
	}
}

func TestRunPoolPropagatesError(t *testing.T) {
	b := &Base{}
	sentinel := errors.New("boom")
	err := b.RunPool(context.Background(), 5, func(ctx context.Context, i int) error {
		if i == 2 {
			return sentinel
		}
		return nil
	})
	if err != sentinel {
		t.Errorf("expected sentinel error, got %v", err)
	}
}

type fakeKeyPairs struct {
	known map[string]string
	imported map[string][]byte
}

func (f *fakeKeyPairs) FindKeyPairByFingerprint(ctx context.Context, fingerprint string) (string, bool, error) {
	name, ok := f.known[fingerprint]
	return name, ok, nil
}

func (f *fakeKeyPairs) ImportKeyPair(ctx context.Context, name string, publicKey []byte) error {
	if f.imported == nil {
		f.imported = map[string][]byte{}
	}
	f.imported[name] = publicKey
	return nil
}

func generateAuthorizedKey(t *testing.T) []byte {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("converting to ssh public key: %v", err)
	}
	return ssh.MarshalAuthorizedKey(sshPub)
}

func TestReconcileKeyPairImportsWhenAbsent(t *testing.T) {
	kp := &fakeKeyPairs{known: map[string]string{}}
	name, err := ReconcileKeyPair(context.Background(), kp, generateAuthorizedKey(t), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := kp.imported[name]; !ok {
		t.Errorf("expected key to be imported under name %q", name)
	}
	if len(name) == 0 || name[:len("unnamed-")] != "unnamed-" {
		t.Errorf("expected default comment prefix \"unnamed-\", got %q", name)
	}
}

func TestReconcileKeyPairReturnsExistingOnMatch(t *testing.T) {
	authKey := generateAuthorizedKey(t)
	pub, _, _, _, err := ssh.ParseAuthorizedKey(authKey)
	if err != nil {
		t.Fatalf("parsing generated key: %v", err)
	}
	fp := ssh.FingerprintLegacyMD5(pub)

	kp := &fakeKeyPairs{known: map[string]string{fp: "already-there"}}
	name, err := ReconcileKeyPair(context.Background(), kp, authKey, "deploy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "already-there" {
		t.Errorf("expected existing keypair name, got %q", name)
	}
	if len(kp.imported) != 0 {
		t.Errorf("should not import when a matching fingerprint already exists")
	}
}
