package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunScenario(t *testing.T) {
	out, err := execute(t, "run", "--log-level", "warn", "../../scenarios/abcb.yaml")
	require.NoError(t, err)
	require.Contains(t, out, "abcb")
	require.Contains(t, out, "COUNTER")
}

func TestRunRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "run", "--stack-size", "lots", "../../scenarios/abcb.yaml")
	require.Error(t, err)

	_, err = execute(t, "run", "--log-level", "warn", "--scheduler", "edf", "../../scenarios/abcb.yaml")
	require.Error(t, err)

	_, err = execute(t, "run")
	require.Error(t, err, "scenario path is required")
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	require.NoError(t, err)
	require.Contains(t, out, "max_threads: 20")
	require.Contains(t, out, "stack_size: 400.00B")

	out, err = execute(t, "config", "../../scenarios/fifo-overflow.yaml")
	require.NoError(t, err)
	require.Contains(t, out, "fifo_size: 4")
	require.Contains(t, out, "scheduler: round-robin")
}
