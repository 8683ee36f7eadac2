// Package sentinel provides a const-declarable error type for package-level
// sentinel errors.
package sentinel

// Compile-time check that Error implements the error interface.
var _ error = Error("")

// Error is an error backed by a string constant. Unlike errors.New it can be
// declared const, so a sentinel can never be reassigned. Being a comparable
// type, it works with errors.Is through wrapped chains out of the box.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
