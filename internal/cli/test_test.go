package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

func TestTest_HarnessScenariosMatchGolden(t *testing.T) {
	out, err := executeCommand(t, "test", harnessScenarios, "--golden", harnessGolden, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.Passed)
	for _, s := range resp.Data.Scenarios {
		assert.Equal(t, "match", s.Golden, s.Name)
	}
}

func TestTest_Filter(t *testing.T) {
	out, err := executeCommand(t, "test", harnessScenarios, "--golden", harnessGolden, "--filter", "trigger-*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ trigger-zone")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTest_UpdateWritesSameBytesAsHarness(t *testing.T) {
	golden := t.TempDir()
	out, err := executeCommand(t, "test", harnessScenarios, "--golden", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	for _, name := range []string{"resting-ball", "trigger-zone", "deregister-before-delivery"} {
		want, err := os.ReadFile(filepath.Join(harnessGolden, name+".golden"))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(golden, name+".golden"))
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), name)
	}
}

func TestTest_GoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "trigger-zone.golden"), []byte("{}\n"), 0o644))

	out, err := executeCommand(t, "test", harnessScenarios, "--golden", golden, "--filter", "trigger-zone")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ trigger-zone")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_FailingAssertion(t *testing.T) {
	dir := t.TempDir()
	scene, err := filepath.Abs("testdata/scenes/ball.yaml")
	require.NoError(t, err)
	scenario := "name: too-many\ndescription: expects more contacts than happen\nscene: " + scene +
		"\nticks: 2\nassertions:\n  - type: event_count\n    kind: contact\n    count: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "too-many.yaml"), []byte(scenario), 0o644))

	out, err := executeCommand(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Equal(t, "missing", resp.Data.Scenarios[0].Golden)
	require.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTest_Errors(t *testing.T) {
	_, err := executeCommand(t, "test", "testdata/nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := executeCommand(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
