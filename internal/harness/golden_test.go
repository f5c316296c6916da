package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBundledScenarioReports(t *testing.T) {
	scenarios, err := Bundled()
	require.NoError(t, err)
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			r, err := RunWithGolden(t, s)
			require.NoError(t, err)
			require.True(t, r.Pass)
		})
	}
}
