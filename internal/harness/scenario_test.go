package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ballScene = `name: ball
nodes:
  - name: ball
    kind: dynamic
    shapes:
      - kind: sphere
        diameter: 2
`

// writeScenario writes a scene and a scenario next to each other in a temp
// dir and returns the scenario path.
func writeScenario(t *testing.T, scenario string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.yaml"), []byte(ballScene), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))
	return path
}

func TestLoadScenario_ResolvesScenePath(t *testing.T) {
	path := writeScenario(t, `name: fall
description: the ball falls
scene: scene.yaml
ticks: 2
assertions:
  - type: actor_count
    count: 1
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "fall", s.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "scene.yaml"), s.Scene)
	assert.Equal(t, 2, s.Ticks)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertActorCount, s.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `name: fall
description: d
scene: scene.yaml
ticks: 1
colour: blue
assertions:
  - type: actor_count
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		want     string
	}{
		{
			name:     "missing name",
			scenario: "description: d\nscene: scene.yaml\nticks: 1\nassertions:\n  - type: actor_count\n",
			want:     "name is required",
		},
		{
			name:     "missing description",
			scenario: "name: n\nscene: scene.yaml\nticks: 1\nassertions:\n  - type: actor_count\n",
			want:     "description is required",
		},
		{
			name:     "missing scene file",
			scenario: "name: n\ndescription: d\nscene: other.yaml\nticks: 1\nassertions:\n  - type: actor_count\n",
			want:     "scene file not found",
		},
		{
			name:     "zero ticks",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 0\nassertions:\n  - type: actor_count\n",
			want:     "ticks must be positive",
		},
		{
			name:     "no assertions",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\n",
			want:     "assertions list is required",
		},
		{
			name:     "action out of range",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 2\nactions:\n  - at: 3\n    do: deregister\n    node: ball\nassertions:\n  - type: actor_count\n",
			want:     "actions[0]: at must be within 1..2",
		},
		{
			name:     "unknown action",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nactions:\n  - at: 1\n    do: explode\n    node: ball\nassertions:\n  - type: actor_count\n",
			want:     `unknown action "explode"`,
		},
		{
			name:     "command without vector",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nactions:\n  - at: 1\n    do: apply_central_force\n    node: ball\nassertions:\n  - type: actor_count\n",
			want:     "vector is required for apply_central_force",
		},
		{
			name:     "set_mass without scalar",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nactions:\n  - at: 1\n    do: set_mass\n    node: ball\nassertions:\n  - type: actor_count\n",
			want:     "scalar is required for set_mass",
		},
		{
			name:     "inertia matrix unsupported",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nactions:\n  - at: 1\n    do: set_mass_and_inertia_matrix\n    node: ball\nassertions:\n  - type: actor_count\n",
			want:     "not supported in scenarios",
		},
		{
			name:     "set_gravity without vector",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nactions:\n  - at: 1\n    do: set_gravity\nassertions:\n  - type: actor_count\n",
			want:     "vector is required for set_gravity",
		},
		{
			name:     "unknown assertion",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nassertions:\n  - type: vibes\n",
			want:     `unknown assertion type "vibes"`,
		},
		{
			name:     "event_count without kind",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nassertions:\n  - type: event_count\n",
			want:     "kind is required for event_count",
		},
		{
			name:     "position with bad axis",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nassertions:\n  - type: position\n    node: ball\n    axis: w\n    above: 1\n",
			want:     "axis must be x, y or z",
		},
		{
			name:     "position without bounds",
			scenario: "name: n\ndescription: d\nscene: scene.yaml\nticks: 1\nassertions:\n  - type: position\n    node: ball\n    axis: y\n",
			want:     "above or below is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.scenario))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
