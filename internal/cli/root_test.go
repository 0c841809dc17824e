package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/isa"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dpusim", cmd.Use)
	assert.Contains(t, cmd.Long, "bit-exact")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "decode", "op", "validate", "test", "trace", "replay"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "decode", "--format", "xml", copyStream)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"version", "binary", "db", "threads", "max-instructions", "dump-dir", "dump-format", "ddr", "run-id"} {
		assert.NotNil(t, run.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestRootOptionsLoadConfig(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		cfg, err := (&RootOptions{}).LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("file", func(t *testing.T) {
		cfg, err := (&RootOptions{Config: smallConfig}).LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, isa.V3E, cfg.Version)
		assert.Equal(t, 1, cfg.Threads)
		assert.Equal(t, 4, cfg.Banks)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := (&RootOptions{Config: "testdata/nope.yaml"}).LoadConfig()
		assert.Error(t, err)
	})
}
