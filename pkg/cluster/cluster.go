/*
Copyright 2018 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cluster is the opaque HTTP collaborator that registers and
// updates a cluster's topology with a remote control plane: POST to create,
// PATCH to update, exactly per spec.md §6.
package cluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
)

// Client talks to the cluster-registration endpoint.
type Client struct {
	BaseURL string
	http    *pester.Client
}

// NewClient returns a Client with pester's default retry/backoff behavior,
// matching pkg/worker/request.go's use of pester for this exact shape of
// "POST/PATCH with retries to a remote aggregator".
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, http: pester.New()}
}

type registerResponse struct {
	Self string `json:"self"`
}

// Create registers a new cluster, returning the URL of the created
// resource (the "self" field of the JSON response).
func (c *Client) Create() (string, error) {
	url := fmt.Sprintf("%s/clusters/", c.BaseURL)
	resp, err := c.http.Post(url, "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", errors.Wrapf(err, "registering cluster at %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("registering cluster at %s: got status %d", url, resp.StatusCode)
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decoding cluster registration response")
	}
	return out.Self, nil
}

// Update PATCHes selfURL's "json" field with data, the way apply pushes
// cluster_data after every reconciliation pass.
func (c *Client) Update(selfURL string, data map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"json": data})
	if err != nil {
		return errors.Wrap(err, "marshaling cluster update")
	}

	req, err := http.NewRequest(http.MethodPatch, selfURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "constructing PATCH request to %s", selfURL)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "updating cluster at %s", selfURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("updating cluster at %s: got status %d", selfURL, resp.StatusCode)
	}
	return nil
}
