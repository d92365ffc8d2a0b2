package cluster

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateReturnsSelfURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/clusters/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"self": "http://example.test/clusters/1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	self, err := c.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if self != "http://example.test/clusters/1" {
		t.Errorf("got %q", self)
	}
}

func TestUpdateSendsPatchWithJSONField(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.Update(srv.URL+"/clusters/1", map[string]interface{}{"containers": []string{}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := gotBody["json"]; !ok {
		t.Errorf("expected body to wrap data under 'json' key, got %v", gotBody)
	}
}
