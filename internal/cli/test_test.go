package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommand_ScenariosPass(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ reorder_keeps_attribution")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", scenariosDir, "--filter", "drift_*", "--format", "json")
	require.NoError(t, err, out)

	var result TestResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "drift_and_departure", result.Scenarios[0].Name)
}

func TestTestCommand_NoMatches(t *testing.T) {
	out, err := execute(t, &RootOptions{}, "test", scenariosDir, "--filter", "nothing_*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, &RootOptions{}, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_UpdateThenDetectDrift(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join(scenariosDir, "reorder_keeps_attribution.yaml"))
	require.NoError(t, err)
	scenario := filepath.Join(dir, "reorder_keeps_attribution.yaml")
	require.NoError(t, os.WriteFile(scenario, src, 0644))

	_, err = execute(t, &RootOptions{}, "test", dir, "--update")
	require.NoError(t, err)

	golden := filepath.Join(dir, "golden", "reorder_keeps_attribution.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = execute(t, &RootOptions{}, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, append(data, '\n'), 0644))
	out, err := execute(t, &RootOptions{}, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "report does not match golden file")
}
