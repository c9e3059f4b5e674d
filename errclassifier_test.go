// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bassosimone/errclass"
	"github.com/stretchr/testify/assert"
)

func TestDefaultErrClassifier(t *testing.T) {
	// Should return empty string for nil error
	assert.Equal(t, "", DefaultErrClassifier.Classify(nil))

	// Should classify known errors using errclass
	assert.Equal(t, errclass.ETIMEDOUT, DefaultErrClassifier.Classify(context.DeadlineExceeded))

	// Should see through our own wrapping
	wrapped := fmt.Errorf("%w: %w", ErrTransportIO, context.DeadlineExceeded)
	assert.Equal(t, errclass.ETIMEDOUT, DefaultErrClassifier.Classify(wrapped))

	// Should return EGENERIC for unknown errors
	assert.Equal(t, errclass.EGENERIC, DefaultErrClassifier.Classify(errors.New("unknown error")))
}

// ErrClassifierFunc delegates to the wrapped function.
func TestErrClassifierFunc(t *testing.T) {
	var got error
	fn := ErrClassifierFunc(func(err error) string {
		got = err
		return "EMOCK"
	})

	wantErr := errors.New("mocked error")
	assert.Equal(t, "EMOCK", fn.Classify(wantErr))
	assert.Equal(t, wantErr, got)
}
