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

package shell

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// InvalidTimeException is returned for a malformed duration string.
type InvalidTimeException struct {
	Input string
}

func (e *InvalidTimeException) Error() string {
	return fmt.Sprintf("invalid time value %q", e.Input)
}

var durationPattern = regexp.MustCompile(`^(\d+)(s|m|h|)$`)

var unitMultiplier = map[string]time.Duration{
	"":  time.Second,
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
}

// ParseDuration implements spec.md §4.G's duration grammar exactly:
// `^(\d+)(s|m|h|)$`, rejecting negatives, non-integers, and any other unit
// letter (the source regex `^(\d+)(\w?)` is permissive; this is the
// corrected, total version per spec.md §9's design note).
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, &InvalidTimeException{Input: s}
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, &InvalidTimeException{Input: s}
	}
	return time.Duration(n) * unitMultiplier[m[2]], nil
}
