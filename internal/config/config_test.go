package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	require.Equal(t, "snowflake", cfg.SQL.ParserDialect)
	require.Equal(t, 10, cfg.SQL.MaxConcurrentLevel)
	require.Equal(t, 300, cfg.Session.InactivitySecs)
	require.Equal(t, "us-east-2", cfg.AWS.DefaultRegion)
}

func TestLoadIsIdempotent(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	first, err := Load("")
	require.NoError(t, err)
	second, err := Load("")
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestGetPanicsWhenNotLoaded(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	require.Panics(t, func() { Get() })
}

func TestInitGlobalSettings(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	_, err := Load("")
	require.NoError(t, err)

	s1 := InitGlobalSettings()
	s2 := InitGlobalSettings()
	require.Same(t, s1, s2)
	require.Equal(t, "us-east-2", s1.DefaultRegion)
}
