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

package driver

import "sync"

// ConnCache lazily constructs and caches a single provider connection.
//
// Go has no implicit thread-local storage the way the source language's
// per-thread cache does, and goroutines aren't 1:1 with OS threads. Instead
// of pretending otherwise, each worker-pool task gets its own ConnCache
// (constructed fresh per RunPool task, never shared across goroutines), so
// the "one live connection per concurrent worker, lazily built" guarantee of
// spec.md §4.D/§5 holds without a shared, potentially not-thread-safe SDK
// client leaking across workers.
type ConnCache struct {
	once sync.Once
	conn interface{}
	err  error
}

// Get returns the cached connection, constructing it on first use via build.
func (c *ConnCache) Get(build func() (interface{}, error)) (interface{}, error) {
	c.once.Do(func() {
		c.conn, c.err = build()
	})
	return c.conn, c.err
}

// NewConnCache returns a fresh, unconnected cache — one per worker task.
func NewConnCache() *ConnCache {
	return &ConnCache{}
}
