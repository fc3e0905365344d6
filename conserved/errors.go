// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrDivideByZero reports an elementwise division by an exact zero.
var ErrDivideByZero = errors.New("conserved: division by zero")

// ShapeMismatchError reports a dense buffer whose shape does not match the
// legs of the array it should fill.
type ShapeMismatchError struct {
	Expected []int
	Got      []int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("conserved: shape mismatch: legs require %v, buffer has %v", e.Expected, e.Got)
}

// IncompatibleChargeError reports an attempt to store data at a sector
// combination whose derived charge differs from the array's total charge.
type IncompatibleChargeError struct {
	Row    []int
	Charge []int
	QTotal []int
}

func (e *IncompatibleChargeError) Error() string {
	return fmt.Sprintf("conserved: sector row %v carries charge %v, total charge is %v", e.Row, e.Charge, e.QTotal)
}

// IncompatibleLegError reports a contraction or binary operation between
// legs that do not match.
type IncompatibleLegError struct {
	AxisA, AxisB int
	Reason       error
}

func (e *IncompatibleLegError) Error() string {
	return fmt.Sprintf("conserved: axes %d and %d are incompatible: %v", e.AxisA, e.AxisB, e.Reason)
}

func (e *IncompatibleLegError) Unwrap() error { return e.Reason }

// InvalidIndexError reports an out-of-range axis or element index, an
// unknown label, a wrong index arity, or a structural misuse such as
// splitting a plain leg.
type InvalidIndexError struct {
	Msg string
}

func (e *InvalidIndexError) Error() string { return "conserved: " + e.Msg }

func invalidIndexf(format string, args ...interface{}) *InvalidIndexError {
	return &InvalidIndexError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports mismatched lengths or invalid values among
// parallel arguments, such as axis lists and sign lists.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "conserved: " + e.Msg }

func configErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

var logger = zap.NewNop()

// SetLogger installs a logger for the package's warning and debug paths.
// The default logger discards everything.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}
