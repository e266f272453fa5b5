package root_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/networth-sync/cmd/root"
)

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "networth-sync", root.Cmd.Use)
	assert.Contains(t, root.Cmd.Short, "bank notification emails")
	assert.NotNil(t, root.Cmd.Run)
	assert.NotNil(t, root.Cmd.PersistentPreRun)
	assert.True(t, root.Cmd.SilenceUsage)
}

func TestRootCommand_Flags(t *testing.T) {
	if root.Cmd.PersistentFlags().Lookup("config") == nil {
		root.Init()
	}
	configFlag := root.Cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestNewContainer_MissingConfigFile(t *testing.T) {
	old := root.ConfigFile
	t.Cleanup(func() { root.ConfigFile = old })

	root.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")
	c, err := root.NewContainer(context.Background())
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "failed to read config file")
}
