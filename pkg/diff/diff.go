// Package diff provides the pipeline-facing entry point for computing a
// desired-minus-detected Collection, kept separate from pkg/resource so the
// reconciliation pipeline depends on an orchestration-shaped API rather than
// reaching directly into Collection's receiver-style Subtract.
package diff

import "github.com/aasemble/cloudctl/pkg/resource"

// Compute returns desired − detected, per spec.md §4.C.
func Compute(desired, detected *resource.Collection) *resource.Collection {
	return desired.Subtract(detected)
}
