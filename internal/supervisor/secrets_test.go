package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretFilePathRejectsTraversalInVolumeID(t *testing.T) {
	dir := t.TempDir()

	_, err := secretFilePath(dir, "../../etc/cron.d/evil")
	assert.Error(t, err)
}

func TestWriteSecretRejectsTraversalInVolumeID(t *testing.T) {
	dir := t.TempDir()

	_, err := writeSecret(dir, "../escape", "s3cr3t")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.key"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteSecretThenRemoveSecretRoundTrips(t *testing.T) {
	dir := t.TempDir()

	path, err := writeSecret(dir, "vol:1", "s3cr3t")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", string(data))

	require.NoError(t, removeSecret(dir, "vol:1"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
