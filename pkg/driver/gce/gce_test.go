package gce

import (
	"testing"

	compute "google.golang.org/api/compute/v1"
)

func TestParsePortRange(t *testing.T) {
	cases := []struct {
		in       []string
		from, to int
	}{
		{nil, 0, 65535},
		{[]string{"22"}, 22, 22},
		{[]string{"8000-8080"}, 8000, 8080},
	}
	for _, c := range cases {
		from, to := parsePortRange(c.in)
		if from != c.from || to != c.to {
			t.Errorf("parsePortRange(%v) = (%d, %d), want (%d, %d)", c.in, from, to, c.from, c.to)
		}
	}
}

func TestPortSpecString(t *testing.T) {
	if got := portSpecString(22, 22); got != "22" {
		t.Errorf("got %q", got)
	}
	if got := portSpecString(8000, 8080); got != "8000-8080" {
		t.Errorf("got %q", got)
	}
}

func TestMetadataValue(t *testing.T) {
	if got := metadataValue(nil, "key"); got != "" {
		t.Errorf("nil metadata should yield empty string, got %q", got)
	}
	m := &compute.Metadata{Items: []*compute.MetadataItems{
		{Key: "namespace", Value: strPtr("team-a")},
	}}
	if got := metadataValue(m, "namespace"); got != "team-a" {
		t.Errorf("got %q", got)
	}
	if got := metadataValue(m, "missing"); got != "" {
		t.Errorf("expected empty string for missing key, got %q", got)
	}
}

func TestLastPathSegment(t *testing.T) {
	url := "https://www.googleapis.com/compute/v1/projects/p/zones/us-central1-a/machineTypes/n1-standard-1"
	if got := lastPathSegment(url); got != "n1-standard-1" {
		t.Errorf("got %q", got)
	}
}
