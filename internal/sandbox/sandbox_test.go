package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func TestLoadCallable_HappyPath(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	ctx := context.Background()
	src := "def fizzbuzz(n):\n    if n % 15 == 0:\n        return \"FizzBuzz\"\n    if n % 3 == 0:\n        return \"Fizz\"\n    if n % 5 == 0:\n        return \"Buzz\"\n    return str(n)\n"

	callable, err := sb.LoadCallable(ctx, src, "fizzbuzz", nil, 5*time.Second)
	require.NoError(t, err)
	defer callable.Close()

	res, err := callable.Call(ctx, float64(15), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "FizzBuzz", res.Output)
	assert.Equal(t, float64(15), res.InputAfter)

	res, err = callable.Call(ctx, float64(7), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "7", res.Output)
}

func TestLoadCallable_SyntaxError(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	_, err := sb.LoadCallable(context.Background(), "def broken(:\n", "broken", nil, 5*time.Second)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ErrorSyntax, sErr.Type)
}

func TestLoadCallable_MissingFunction(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	_, err := sb.LoadCallable(context.Background(), "x = 1\n", "does_not_exist", nil, 5*time.Second)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ErrorMissingFunction, sErr.Type)
}

func TestLoadCallable_ImportViolation(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	src := "import os\ndef solve(n):\n    return os.getcwd()\n"
	_, err := sb.LoadCallable(context.Background(), src, "solve", map[string]bool{}, 5*time.Second)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ErrorImportViolation, sErr.Type)
}

func TestLoadCallable_AllowedImport(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	src := "import math\ndef solve(n):\n    return math.sqrt(n)\n"
	callable, err := sb.LoadCallable(context.Background(), src, "solve", map[string]bool{"math": true}, 5*time.Second)
	require.NoError(t, err)
	defer callable.Close()

	res, err := callable.Call(context.Background(), float64(16), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(4), res.Output)
}

func TestCall_InputAfterReflectsMutation(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	src := "def solve(xs):\n    xs.append(99)\n    return len(xs)\n"
	callable, err := sb.LoadCallable(context.Background(), src, "solve", nil, 5*time.Second)
	require.NoError(t, err)
	defer callable.Close()

	res, err := callable.Call(context.Background(), []any{float64(1), float64(2)}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, float64(3), res.Output)
	assert.Equal(t, []any{float64(1), float64(2), float64(99)}, res.InputAfter)
}

func TestCall_Timeout(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	src := "import time\ndef solve(n):\n    while True:\n        pass\n"
	callable, err := sb.LoadCallable(context.Background(), src, "solve", map[string]bool{"time": true}, 5*time.Second)
	require.NoError(t, err)
	defer callable.Close()

	_, err = callable.Call(context.Background(), float64(1), 300*time.Millisecond)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ErrorTimeout, sErr.Type)
}

func TestCall_RuntimeException(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	src := "def solve(n):\n    return 1 / n\n"
	callable, err := sb.LoadCallable(context.Background(), src, "solve", nil, 5*time.Second)
	require.NoError(t, err)
	defer callable.Close()

	_, err = callable.Call(context.Background(), float64(0), 2*time.Second)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ErrorRuntime, sErr.Type)
}

func TestCall_DeniedBuiltin(t *testing.T) {
	requirePython3(t)

	sb := New(Config{})
	src := "def solve(n):\n    return eval(str(n))\n"
	callable, err := sb.LoadCallable(context.Background(), src, "solve", nil, 5*time.Second)
	require.NoError(t, err)
	defer callable.Close()

	_, err = callable.Call(context.Background(), float64(1), 2*time.Second)
	require.Error(t, err)

	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, ErrorRuntime, sErr.Type)
}
