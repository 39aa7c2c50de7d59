package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "schema")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestSchemaCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphrepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: sqlite\nsqlite:\n  path: \":memory:\"\nlog:\n  level: error\n"), 0o600))

	root := newRootCommand()
	root.SetArgs([]string{"--config", path, "schema"})
	require.NoError(t, root.ExecuteContext(context.Background()))
}

func TestSchemaCommandRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphrepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: cassandra\n"), 0o600))

	root := newRootCommand()
	root.SetArgs([]string{"--config", path, "schema"})
	root.SilenceErrors = true
	assert.Error(t, root.ExecuteContext(context.Background()))
}
