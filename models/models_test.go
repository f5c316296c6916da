package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/compiler"
)

func TestBundledModelsCompile(t *testing.T) {
	names := Names()
	assert.Equal(t, []string{BeelerReuter, HodgkinHuxley, LinearDecay, PiecewiseStress, Relaxation}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			m, err := Load(name)
			require.NoError(t, err)
			assert.NotEmpty(t, m.States())
			assert.Empty(t, compiler.Validate(m))
		})
	}
}

func TestHodgkinHuxleyLayout(t *testing.T) {
	m := MustLoad(HodgkinHuxley)
	assert.Equal(t, "hodgkin_huxley_squid_axon_model_1952_modified", m.Name())

	var names []string
	var initials []float64
	for _, s := range m.States() {
		names = append(names, s.Name)
		initials = append(initials, s.Initial)
	}
	assert.Equal(t, []string{
		"membrane.V",
		"sodium_channel_m_gate.m",
		"sodium_channel_h_gate.h",
		"potassium_channel_n_gate.n",
	}, names)
	assert.Equal(t, []float64{-75, 0.05, 0.6, 0.325}, initials)
	assert.Len(t, m.Parameters(), 5)
	assert.Len(t, m.Derived(), 3)

	s, ok := m.Stimulus()
	require.True(t, ok)
	assert.Equal(t, "membrane.i_Stim", s.Variable)
}

func TestUnknownModel(t *testing.T) {
	_, err := Load("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bundled model")
}
