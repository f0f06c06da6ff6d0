package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bsonmend", cmd.Use)
	assert.Contains(t, cmd.Long, "UTF-8")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"fix", "scan", "history"}

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
}

func TestFixCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	fixCmd, _, err := cmd.Find([]string{"fix"})
	require.NoError(t, err)

	parallel := fixCmd.Flags().Lookup("parallel")
	require.NotNil(t, parallel)
	assert.Equal(t, "1", parallel.DefValue)

	for _, name := range []string{"uri", "database", "collection", "confirm", "dry-run", "journal", "skip-declined", "config"} {
		assert.NotNil(t, fixCmd.Flags().Lookup(name), name)
	}

	// Aliases resolve to the canonical flags.
	assert.Equal(t, "database", fixCmd.Flags().Lookup("db").Name)
	assert.Equal(t, "collection", fixCmd.Flags().Lookup("col").Name)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	res := execute(cmd, "", "history", "--format", "xml", "--journal", "x.db")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "invalid format")
}

func TestFixThroughRootValidatesConfig(t *testing.T) {
	cmd := NewRootCommand()
	res := execute(cmd, "", "--verbose", "fix", "--db", "shop")
	require.Error(t, res.err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.err))
	assert.Contains(t, res.err.Error(), "invalid configuration")
	assert.Empty(t, res.stdout)
}
