package codeeval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunReturnsEntryPointResult(t *testing.T) {
	src := `function solve(input) { return { sum: input.a + input.b }; }`
	res, err := Run(context.Background(), src, "solve", Case{Input: map[string]any{"a": 2, "b": 3}})
	require.NoError(t, err)
	require.Empty(t, res.Error)
	out, ok := res.Output.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, int64(5), toInt64(out["sum"]))
}

func TestRunCapturesConsoleLogs(t *testing.T) {
	src := `function solve(input) { console.log("hello", input.a); return input.a; }`
	res, err := Run(context.Background(), src, "solve", Case{Input: map[string]any{"a": 1}})
	require.NoError(t, err)
	require.Len(t, res.Logs, 1)
}

func TestRunReportsSyntaxError(t *testing.T) {
	src := `function solve(input) { return )`
	res, err := Run(context.Background(), src, "solve", Case{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Error)
}

func TestRunMissingEntryPoint(t *testing.T) {
	src := `function other() { return 1; }`
	res, err := Run(context.Background(), src, "solve", Case{})
	require.NoError(t, err)
	require.Contains(t, res.Error, "is not a function")
}

func TestRunTimesOutOnInfiniteLoop(t *testing.T) {
	src := `function solve(input) { while (true) {} }`
	start := time.Now()
	res, err := Run(context.Background(), src, "solve", Case{})
	require.NoError(t, err)
	require.True(t, res.TimedOut)
	require.Less(t, time.Since(start), 3*time.Second)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return -1
	}
}
