package cloudconfig

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleINI = `
[connection]
driver = openstack
username = admin
password = secret

[images]
ubuntu = image-uuid-1

[flavors]
small = 2
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloud.ini")
	if err := os.WriteFile(path, []byte(sampleINI), 0o644); err != nil {
		t.Fatalf("writing sample config: %v", err)
	}
	return path
}

func TestLoadParsesSections(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Driver != "openstack" {
		t.Errorf("got driver %q", cfg.Driver)
	}
	if cfg.Connection["username"] != "admin" {
		t.Errorf("got username %q", cfg.Connection["username"])
	}
	if cfg.Images["ubuntu"] != "image-uuid-1" {
		t.Errorf("got image mapping %q", cfg.Images["ubuntu"])
	}
	if cfg.Flavors["small"] != "2" {
		t.Errorf("got flavor mapping %q", cfg.Flavors["small"])
	}
}

func TestLoadRequiresDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ini")
	os.WriteFile(path, []byte("[connection]\nusername = admin\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Errorf("expected error when driver key is missing")
	}
}
