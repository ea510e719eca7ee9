package romscfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleIn = `! Example ROMS runtime settings
title:
    Example runtime settings

time_stepping: ntimes dt ndtfast ninfo
    360    60    60    1

bottom_drag: rdrg rdrg2 zob
    0.0    1.0D-3    0.01

initial:
    0


forcing:
    forcing_a.nc
    forcing_b.nc

output_root_name:
    whatever_the_user_wrote

S-coord: theta_s theta_b tcline
    5.0    0.4    250.0

rho0:
    1027.5

lateral_visc:
    1.0D-10
`

func TestParse_RequiredFields(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleIn))
	require.NoError(t, err)

	assert.Equal(t, "Example runtime settings", s.Title)
	assert.Equal(t, TimeStepping{NTimes: 360, DT: 60, NDTFast: 60, NInfo: 1}, s.TimeStepping)
	assert.Equal(t, 0.0, s.BottomDrag.RDRG)
	assert.Equal(t, 1.0e-3, s.BottomDrag.RDRG2)
	assert.Equal(t, 0.01, s.BottomDrag.Zob)
	assert.Equal(t, 0, s.Initial.NRRec)
	assert.Equal(t, []string{"forcing_a.nc", "forcing_b.nc"}, s.Forcing)
}

func TestParse_FixesOutputRootName(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleIn))
	require.NoError(t, err)
	assert.Equal(t, CanonicalOutputRootName, s.OutputRootName)
	assert.NotEqual(t, "whatever_the_user_wrote", s.OutputRootName)
}

func TestParse_OptionalSections(t *testing.T) {
	s, err := Parse(strings.NewReader(sampleIn))
	require.NoError(t, err)

	require.NotNil(t, s.SCoord)
	assert.Equal(t, SCoord{ThetaS: 5.0, ThetaB: 0.4, Tcline: 250.0}, *s.SCoord)

	require.NotNil(t, s.Rho0)
	assert.Equal(t, 1027.5, *s.Rho0)

	require.NotNil(t, s.LateralVisc)
	assert.Equal(t, 1.0e-10, *s.LateralVisc)

	assert.Nil(t, s.Gamma2)
	assert.Nil(t, s.VerticalMixing)
}

func TestRoundTrip(t *testing.T) {
	orig, err := Parse(strings.NewReader(sampleIn))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, orig.Emit(&buf))

	reparsed, err := Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)

	assert.Equal(t, orig, reparsed)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.", formatFloat(0.0))
	assert.Equal(t, "1027.5", formatFloat(1027.5))
	assert.Equal(t, "1.000000E-10", formatFloat(1e-10))
	assert.Equal(t, "1.000000E+04", formatFloat(1e4))
	assert.Equal(t, "1", formatFloat(1.0))
}

func TestParse_MissingRequiredSection(t *testing.T) {
	_, err := Parse(strings.NewReader("title:\n    only a title\n"))
	assert.Error(t, err)
}
