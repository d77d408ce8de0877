// Package testutil provides testing utilities shared by the module's tests.
package testutil

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// DefaultTimeout bounds Context and Drain.
const DefaultTimeout = 10 * time.Second

// Logger creates a logger that writes to the test output.
func Logger(t testing.TB) *zap.Logger {
	return zaptest.NewLogger(t)
}

// Context returns a context cancelled after DefaultTimeout or when the
// test ends, whichever comes first.
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// Collect runs seq to completion, failing the test on the first error.
func Collect[T any](t testing.TB, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

// Drain reads ch until it is closed. The test fails if that takes longer
// than DefaultTimeout.
func Drain[T any](t testing.TB, ch <-chan T) []T {
	t.Helper()
	var out []T
	timeout := time.After(DefaultTimeout)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timeout:
			t.Fatal("channel was not closed")
			return nil
		}
	}
}
