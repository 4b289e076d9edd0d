package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/taskplan/internal/cli"
)

func TestParse_PlanPathFromPositionalArg(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := cli.Parse([]string{"plan.hcl"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	require.Equal(t, "plan.hcl", cfg.PlanPath)
	require.Equal(t, 10, cfg.WorkerCount, "default worker count")
	require.Equal(t, "json", cfg.LogFormat)
}

func TestParse_PFlagShorthandWins(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, _, err := cli.Parse([]string{"-p", "shorthand.hcl"}, out)
	require.NoError(t, err)
	require.Equal(t, "shorthand.hcl", cfg.PlanPath)
}

func TestParse_PlanFlagTakesPrecedenceOverPositional(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, _, err := cli.Parse([]string{"-plan", "explicit.hcl", "positional.hcl"}, out)
	require.NoError(t, err)
	require.Equal(t, "explicit.hcl", cfg.PlanPath)
}

func TestParse_NoPathPrintsUsageAndExits(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, shouldExit, err := cli.Parse(nil, out)
	require.NoError(t, err)
	require.True(t, shouldExit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidLogFormatIsRejected(t *testing.T) {
	out := &bytes.Buffer{}
	_, _, err := cli.Parse([]string{"-log-format", "xml", "plan.hcl"}, out)
	require.Error(t, err)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_InvalidLogLevelIsRejected(t *testing.T) {
	out := &bytes.Buffer{}
	_, _, err := cli.Parse([]string{"-log-level", "verbose", "plan.hcl"}, out)
	require.Error(t, err)
}

func TestParse_ZeroWorkersIsRejected(t *testing.T) {
	out := &bytes.Buffer{}
	_, _, err := cli.Parse([]string{"-workers", "0", "plan.hcl"}, out)
	require.Error(t, err)
}

func TestParse_StatsFlagPropagates(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, _, err := cli.Parse([]string{"-stats", "plan.hcl"}, out)
	require.NoError(t, err)
	require.True(t, cfg.Stats)
}
