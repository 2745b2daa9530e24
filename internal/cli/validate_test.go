package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidScene(t *testing.T) {
	out, err := executeCommand(t, "validate", "testdata/scenes/ball.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ testdata/scenes/ball.yaml is valid (2 nodes)")
}

func TestValidate_ValidSceneJSON(t *testing.T) {
	out, err := executeCommand(t, "validate", "testdata/scenes/ball.yaml", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "ball", resp.Data.Scene)
	assert.Equal(t, 2, resp.Data.Nodes)
}

func TestValidate_InvalidScene(t *testing.T) {
	out, err := executeCommand(t, "validate", "testdata/scenes/bad-shape.yaml", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.NotEmpty(t, resp.Data.Errors[0].Message)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSceneInvalid, resp.Error.Code)
}

func TestValidate_InvalidSceneText(t *testing.T) {
	out, err := executeCommand(t, "validate", "testdata/scenes/bad-shape.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := executeCommand(t, "validate", "testdata/scenes/nope.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
