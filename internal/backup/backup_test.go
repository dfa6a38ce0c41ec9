package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBackupRestoreRoundtrip(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "fleetpulse.db")
	// A zero-length file is a valid empty SQLite database.
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))
	cfgPath := filepath.Join(src, "fleetpulse.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("listen_addr: :8787\n"), 0o644))

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, Backup(context.Background(), dbPath, cfgPath, archive))

	target := t.TempDir()
	require.NoError(t, Restore(context.Background(), archive, target, false))

	for _, name := range []string{"fleetpulse.db", "fleetpulse.yaml"} {
		_, err := os.Stat(filepath.Join(target, name))
		require.NoError(t, err, "restored file %s", name)
	}

	got, err := os.ReadFile(filepath.Join(target, "fleetpulse.yaml"))
	require.NoError(t, err)
	require.Equal(t, "listen_addr: :8787\n", string(got))
}

func TestRestoreRefusesOverwriteWithoutForce(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "fleetpulse.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, Backup(context.Background(), dbPath, "", archive))

	target := t.TempDir()
	existing := filepath.Join(target, "fleetpulse.db")
	require.NoError(t, os.WriteFile(existing, []byte("live data"), 0o644))

	require.Error(t, Restore(context.Background(), archive, target, false))
	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	require.Equal(t, "live data", string(got), "existing file must not be clobbered")

	require.NoError(t, Restore(context.Background(), archive, target, true))
}

func TestBackupMissingDatabase(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	err := Backup(context.Background(), filepath.Join(t.TempDir(), "nope.db"), "", archive)
	require.Error(t, err)
}
