package supervisor

import (
	"os"
	"strings"

	"github.com/objectfs/roset/pkg/utils"
)

// secretFilePath returns the path a volume's bearer-token secret is
// written to: <secrets_dir>/<volume_id_with_colons_replaced>.key, per
// spec.md §6. volumeID is caller-controlled (it arrives through the
// plugin-surface boundary's Register call), so the join goes through
// utils.SecureJoin rather than plain filepath.Join: a volumeID crafted
// with ".." elements must not be able to point writeSecret/removeSecret
// outside secretsDir.
func secretFilePath(secretsDir, volumeID string) (string, error) {
	safe := strings.ReplaceAll(volumeID, ":", "_")
	return utils.SecureJoin(secretsDir, safe+".key")
}

// writeSecret writes a volume's secret to its own file, mode 0600, under
// a restricted directory, so the mount process reads it from disk
// instead of receiving it as a process argument (spec.md §4.6, visible
// in ps output otherwise).
func writeSecret(secretsDir, volumeID, secret string) (string, error) {
	if err := os.MkdirAll(secretsDir, 0o700); err != nil {
		return "", err
	}
	path, err := secretFilePath(secretsDir, volumeID)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// removeSecret deletes a volume's secret file on unregister.
func removeSecret(secretsDir, volumeID string) error {
	path, err := secretFilePath(secretsDir, volumeID)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
