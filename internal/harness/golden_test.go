package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/physync/internal/trace"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertion failures: %v", result.Errors)
		})
	}
}

func TestMarshalSnapshot_EmptyListsAndNoEscaping(t *testing.T) {
	data, err := MarshalSnapshot(Snapshot("a<b", []trace.Tick{{Seq: 1, DeltaMicros: 10}}))
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"scenario_name": "a<b"`)
	assert.Contains(t, s, `"events": []`)
	assert.Contains(t, s, `"commands": []`)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestSnapshot_FormatsEventsAndCommands(t *testing.T) {
	ticks := []trace.Tick{{
		Seq:      2,
		Events:   []trace.Event{{Kind: "contact", Sender: "ground", Receiver: "ball"}},
		Commands: []trace.Command{{Node: "ball", Name: "set_mass"}},
	}}

	s := Snapshot("x", ticks)
	require.Len(t, s.Ticks, 1)
	assert.Equal(t, []string{"contact ground -> ball"}, s.Ticks[0].Events)
	assert.Equal(t, []string{"ball set_mass"}, s.Ticks[0].Commands)
}
