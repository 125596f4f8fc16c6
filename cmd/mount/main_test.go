package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEphemeralKeyFileIsPrivateAndReadable(t *testing.T) {
	path, err := writeEphemeralKeyFile("s3cr3t")
	require.NoError(t, err)
	defer os.RemoveAll(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
