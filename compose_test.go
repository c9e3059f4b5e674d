// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// increment returns a Func adding one to its input and counting calls.
func increment(calls *int) Func[int, int] {
	return FuncAdapter[int, int](func(ctx context.Context, n int) (int, error) {
		*calls++
		return n + 1, nil
	})
}

// FuncAdapter calls the wrapped function.
func TestFuncAdapter(t *testing.T) {
	adapter := FuncAdapter[int, string](func(ctx context.Context, input int) (string, error) {
		return strconv.Itoa(input), nil
	})

	output, err := adapter.Call(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, "42", output)
}

func TestCompose2(t *testing.T) {
	t.Run("success path", func(t *testing.T) {
		op1 := FuncAdapter[int, string](func(ctx context.Context, n int) (string, error) {
			return "hello", nil
		})
		op2 := FuncAdapter[string, int](func(ctx context.Context, s string) (int, error) {
			return len(s), nil
		})

		result, err := Compose2(op1, op2).Call(context.Background(), 42)

		require.NoError(t, err)
		assert.Equal(t, 5, result)
	})

	t.Run("first operation fails", func(t *testing.T) {
		wantErr := errors.New("op1 failed")
		op1 := FuncAdapter[int, string](func(ctx context.Context, n int) (string, error) {
			return "", wantErr
		})
		op2 := FuncAdapter[string, int](func(ctx context.Context, s string) (int, error) {
			t.Fatal("op2 should not be called")
			return 0, nil
		})

		_, err := Compose2(op1, op2).Call(context.Background(), 42)

		require.ErrorIs(t, err, wantErr)
	})
}

func TestCompose3And4(t *testing.T) {
	var calls int

	result, err := Compose3(increment(&calls), increment(&calls), increment(&calls)).Call(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, result)

	result, err = Compose4(increment(&calls), increment(&calls), increment(&calls), increment(&calls)).Call(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, result)

	assert.Equal(t, 7, calls)
}

func TestApply(t *testing.T) {
	var calls int

	result, err := Apply(increment(&calls), 41).Call(context.Background(), Unit{})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestConstFunc(t *testing.T) {
	target := &Target{Scheme: SchemeTCP, Host: "example.com", Port: 7878}

	result, err := ConstFunc(target).Call(context.Background(), Unit{})

	require.NoError(t, err)
	assert.Same(t, target, result)
}
