package openstack

import (
	"errors"
	"testing"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
)

func TestSgNamesFromServer(t *testing.T) {
	srv := servers.Server{
		SecurityGroups: []interface{}{
			map[string]interface{}{"name": "web"},
			map[string]interface{}{"name": "db"},
			"not-a-map",
		},
	}
	names := sgNamesFromServer(srv)
	if !names["web"] || !names["db"] {
		t.Errorf("expected web and db, got %v", names)
	}
	if len(names) != 2 {
		t.Errorf("expected exactly 2 names, got %v", names)
	}
}

func TestSgNamesFromServerNilField(t *testing.T) {
	names := sgNamesFromServer(servers.Server{})
	if len(names) != 0 {
		t.Errorf("expected no names when SecurityGroups is nil, got %v", names)
	}
}

func TestIsConflict(t *testing.T) {
	if isConflict(nil) {
		t.Errorf("nil error should not be a conflict")
	}
	if !isConflict(gophercloud.ErrDefault409{}) {
		t.Errorf("ErrDefault409 should be a conflict")
	}
	if !isConflict(errors.New("unexpected response code: 409")) {
		t.Errorf("error message containing 409 should be treated as a conflict")
	}
	if isConflict(errors.New("unexpected response code: 500")) {
		t.Errorf("unrelated error should not be a conflict")
	}
}
