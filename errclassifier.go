// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import "github.com/bassosimone/errclass"

// ErrClassifier maps errors to short categorical labels (e.g., "ETIMEDOUT",
// "ECONNRESET") attached to the errClass field of *Done log events.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	cfg.ErrClassifier = ErrClassifierFunc(func(error) string { return "" })
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using [errclass.New].
//
// It returns an empty string for a nil error.
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
