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

package loader

import (
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/aasemble/cloudctl/pkg/shell"
	"github.com/aasemble/cloudctl/pkg/substitution"
)

type stepDoc struct {
	Script       string            `yaml:"script"`
	Environment  map[string]string `yaml:"environment"`
	Type         string            `yaml:"type"`
	Node         string            `yaml:"node"`
	RetryIfFails bool              `yaml:"retry_if_fails"`
	Timeout      string            `yaml:"timeout"`
	RetryDelay   string            `yaml:"retry_delay"`
	TotalTimeout string            `yaml:"total_timeout"`
}

type stepsDoc struct {
	Steps []stepDoc `yaml:"steps"`
}

// LoadSteps parses the `steps` section of a provisioning document into the
// shell.Step list the StepRunner executes, per spec.md §4.G's shell step.
func LoadSteps(raw []byte, vars map[string]string) ([]shell.Step, error) {
	expanded := substitution.Expand(string(raw), vars)

	var doc stepsDoc
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, errors.Wrap(err, "parsing steps document")
	}

	steps := make([]shell.Step, 0, len(doc.Steps))
	for _, sd := range doc.Steps {
		step := shell.Step{
			Script:       sd.Script,
			Environment:  sd.Environment,
			Type:         sd.Type,
			Node:         sd.Node,
			RetryIfFails: sd.RetryIfFails,
		}
		var err error
		if step.Timeout, err = parseDurationField(sd.Timeout); err != nil {
			return nil, err
		}
		if step.RetryDelay, err = parseDurationField(sd.RetryDelay); err != nil {
			return nil, err
		}
		if step.TotalTimeout, err = parseDurationField(sd.TotalTimeout); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseDurationField(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return shell.ParseDuration(s)
}
