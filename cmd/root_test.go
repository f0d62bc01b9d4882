package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"import", "geocode", "nearby", "status", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "license-map", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("checkpoint")
	require.NotNil(t, flag, "root command should have --checkpoint flag")
}

func TestImportCommand_Flags(t *testing.T) {
	for _, name := range []string{"source", "columns", "sheet"} {
		assert.NotNil(t, importCmd.Flags().Lookup(name), "import command should have --%s flag", name)
	}
}

func TestGeocodeCommand_Flags(t *testing.T) {
	flag := geocodeCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "geocode command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)

	flag = geocodeCmd.Flags().Lookup("requeue-no-match")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestNearbyCommand_Flags(t *testing.T) {
	for _, name := range []string{"lat", "lon", "radius", "limit", "json"} {
		assert.NotNil(t, nearbyCmd.Flags().Lookup(name), "nearby command should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
