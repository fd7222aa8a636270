// Package abcerr collects the error kinds spec.md §7 names as
// "fatal at construction": configuration mismatches, including the
// seven-argument type-tag ordering check of spec.md §6 ("a type tag on
// each is checked and order-mismatch is a fatal error"). Dimension
// mismatches are reported by config.ValidationError and non-finite
// weight normalizers by smc.WeightError — both are themselves fatal,
// but are defined in their owning packages since they carry
// package-specific diagnostic payloads.
package abcerr

import "fmt"

// KindMismatchError reports that a configuration argument was passed
// in the wrong position: its Kind() tag did not match what that
// position expects.
type KindMismatchError struct {
	Position int
	Want     string
	Got      string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("argument %d: expected %s, got %s", e.Position, e.Want, e.Got)
}
