// Package errwrap contains the small set of error helpers the rest of this
// module builds on: wrapping one error with context (worker.Run's shutdown
// path), aggregating many errors from a batch operation into one
// (worker.AddPatternEdge, worker.RemoveVertices), and rendering an error (or
// a nil one) as a string for logging.
package errwrap

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Wrapf adds a formatted message onto an existing chain of errors. If err is
// nil, Wrapf returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Append safely appends an error onto an existing one, for callers iterating
// a batch of independent operations (each of which might fail) that want to
// keep going and report every failure at the end rather than stopping at the
// first one. A nil `err` leaves `reterr` unchanged; a nil `reterr` becomes
// `err`. This makes it safe to use as a running `reterr = Append(reterr, err)`
// accumulator inside a loop without a nil check on either side.
func Append(reterr, err error) error {
	if reterr == nil { // keep it simple, pass it through
		return err // which might even be nil
	}
	if err == nil { // no error, so don't do anything
		return reterr
	}
	// both are real errors
	return multierror.Append(reterr, err)
}

// String returns a string representation of the error. In particular, if the
// error is nil, it returns an empty string instead of panicing.
func String(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
