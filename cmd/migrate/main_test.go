package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["up"])
	assert.True(t, names["down"])
	assert.True(t, names["version"])
}

func TestDownCmd_RejectsZeroSteps(t *testing.T) {
	_, err := execute(t, "down", "--steps", "0", "--database-url", "postgres://u:p@127.0.0.1:1/db?sslmode=disable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1")
}

func TestRootCmd_RejectsExtraArgs(t *testing.T) {
	_, err := execute(t, "version", "extra", "--database-url", "postgres://u:p@127.0.0.1:1/db")
	assert.Error(t, err)
}

func TestDirFlagDefaultsFromEnv(t *testing.T) {
	t.Setenv("MIGRATIONS_DIR", "/srv/findoc/migrations")
	f := newRootCmd().PersistentFlags().Lookup("dir")
	require.NotNil(t, f)
	assert.Equal(t, "/srv/findoc/migrations", f.DefValue)
}
