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

// Package cloudconfig loads the INI cloud-account configuration described
// in spec.md §6: a [connection] section naming the driver plus
// provider-specific credentials, and [images]/[flavors] symbolic-to-provider
// id mappings.
package cloudconfig

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Config is one cloud account's configuration.
type Config struct {
	Driver     string
	Connection map[string]string
	Images     map[string]string
	Flavors    map[string]string
}

// Load reads and parses the INI document at path.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading cloud config %s", path)
	}

	conn := f.Section("connection")
	driver := conn.Key("driver").String()
	if driver == "" {
		return nil, fmt.Errorf("cloud config %s: [connection] is missing required key 'driver'", path)
	}

	cfg := &Config{
		Driver:     driver,
		Connection: sectionToMap(conn),
		Images:     sectionToMap(f.Section("images")),
		Flavors:    sectionToMap(f.Section("flavors")),
	}
	return cfg, nil
}

func sectionToMap(s *ini.Section) map[string]string {
	m := make(map[string]string, len(s.Keys()))
	for _, k := range s.Keys() {
		m[k.Name()] = k.String()
	}
	return m
}

// Mappings assembles the {kind: {name: providerID}} table driver.Base
// expects from the loaded Images/Flavors sections.
func (c *Config) Mappings() map[string]map[string]string {
	return map[string]map[string]string{
		"images":  c.Images,
		"flavors": c.Flavors,
	}
}
