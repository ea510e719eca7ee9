package envvar

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		orig, had := os.LookupEnv(n)
		os.Unsetenv(n)
		t.Cleanup(func() {
			if had {
				os.Setenv(n, orig)
			} else {
				os.Unsetenv(n)
			}
		})
	}
}

func TestDescriptor_Value_OwnVariableWins(t *testing.T) {
	clearEnv(t, "CSTAR_LOG_LEVEL")
	os.Setenv("CSTAR_LOG_LEVEL", "debug")
	assert.Equal(t, "debug", LogLevel.Value())
}

func TestDescriptor_Value_FallsBackToDefault(t *testing.T) {
	clearEnv(t, "CSTAR_LOG_LEVEL")
	assert.Equal(t, "info", LogLevel.Value())
}

func TestDescriptor_Value_IndirectFallback(t *testing.T) {
	clearEnv(t, "CSTAR_CACHE_HOME", "XDG_CACHE_HOME")
	os.Setenv("XDG_CACHE_HOME", "/xdg/cache")
	assert.Equal(t, "/xdg/cache", CacheHome.Value())
}

func TestDescriptor_Value_OwnVariableBeatsIndirect(t *testing.T) {
	clearEnv(t, "CSTAR_CACHE_HOME", "XDG_CACHE_HOME")
	os.Setenv("XDG_CACHE_HOME", "/xdg/cache")
	os.Setenv("CSTAR_CACHE_HOME", "/explicit/cache")
	assert.Equal(t, "/explicit/cache", CacheHome.Value())
}

func TestDescriptor_Value_DefaultFactoryBeatsIndirectAndDefault(t *testing.T) {
	clearEnv(t, "CSTAR_DATA_HOME", "SCRATCH", "SCRATCH_DIR", "LOCAL_SCRATCH", "XDG_DATA_HOME")
	os.Setenv("SCRATCH_DIR", "/scratch/mine")
	os.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, "/scratch/mine", DataHome.Value())
}

func TestDescriptor_Value_DefaultFactoryEmptyFallsThrough(t *testing.T) {
	clearEnv(t, "CSTAR_DATA_HOME", "SCRATCH", "SCRATCH_DIR", "LOCAL_SCRATCH", "XDG_DATA_HOME")
	assert.Equal(t, "~/.local/share/cstar", DataHome.Value())
}

func TestDiscover_FiltersByGroup(t *testing.T) {
	paths := Discover("paths")
	assert.NotEmpty(t, paths)
	for _, d := range paths {
		assert.Equal(t, "paths", d.Group)
	}
}

func TestGetEnvItem(t *testing.T) {
	d, ok := GetEnvItem("CSTAR_LOG_LEVEL")
	assert.True(t, ok)
	assert.Equal(t, LogLevel, d)

	_, ok = GetEnvItem("CSTAR_DOES_NOT_EXIST")
	assert.False(t, ok)
}

func TestIsFeatureEnabled_DeveloperModeOverridesEverything(t *testing.T) {
	clearEnv(t, "DEVELOPER_MODE", "CSTAR_FF_anything")
	os.Setenv("DEVELOPER_MODE", "1")
	assert.True(t, IsFeatureEnabled("anything"))
}

func TestIsFeatureEnabled_ExactMatch(t *testing.T) {
	clearEnv(t, "DEVELOPER_MODE", "CSTAR_FF_staging_cache")
	os.Setenv("CSTAR_FF_staging_cache", "1")
	assert.True(t, IsFeatureEnabled("staging_cache"))
}

func TestIsFeatureEnabled_PrefixEnablesWholeHierarchy(t *testing.T) {
	clearEnv(t, "DEVELOPER_MODE", "CSTAR_FF_staging", "CSTAR_FF_staging_cache")
	os.Setenv("CSTAR_FF_staging", "1")
	assert.True(t, IsFeatureEnabled("staging_cache_subfeature"))
}

func TestIsFeatureEnabled_Disabled(t *testing.T) {
	clearEnv(t, "DEVELOPER_MODE", "CSTAR_FF_unset_feature")
	assert.False(t, IsFeatureEnabled("unset_feature"))
}

func TestIsFeatureEnabled_AcceptsPrefixedName(t *testing.T) {
	clearEnv(t, "DEVELOPER_MODE", "CSTAR_FF_staging_cache")
	os.Setenv("CSTAR_FF_staging_cache", "1")
	assert.True(t, IsFeatureEnabled("CSTAR_FF_staging_cache"))
}
